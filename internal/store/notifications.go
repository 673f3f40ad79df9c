package store

import "animegram/internal/models"

// NotificationsState is the viewer's activity list, newest first.
type NotificationsState struct {
	Items   []models.Notification `json:"items"`
	Loading bool                  `json:"loading"`
	Error   string                `json:"error"`
}

// NewNotificationsState returns an empty notification slice.
func NewNotificationsState() NotificationsState {
	return NotificationsState{Items: []models.Notification{}}
}

func (n NotificationsState) FetchStart() NotificationsState {
	n.Loading = true
	n.Error = ""
	return n
}

// FetchSucceeded replaces the list.
func (n NotificationsState) FetchSucceeded(items []models.Notification) NotificationsState {
	next := make([]models.Notification, len(items))
	copy(next, items)
	n.Items = next
	n.Loading = false
	n.Error = ""
	return n
}

func (n NotificationsState) FetchFailed(message string) NotificationsState {
	n.Loading = false
	n.Error = message
	return n
}

// Add prepends a delivered notification. A notification already present is
// not added twice.
func (n NotificationsState) Add(item models.Notification) NotificationsState {
	for i := range n.Items {
		if n.Items[i].ID == item.ID {
			return n
		}
	}
	next := make([]models.Notification, 0, len(n.Items)+1)
	next = append(next, item)
	n.Items = append(next, n.Items...)
	return n
}

// MarkRead flags one notification as read.
func (n NotificationsState) MarkRead(id string) NotificationsState {
	for i := range n.Items {
		if n.Items[i].ID != id {
			continue
		}
		if n.Items[i].Read {
			return n
		}
		next := make([]models.Notification, len(n.Items))
		copy(next, n.Items)
		next[i].Read = true
		n.Items = next
		return n
	}
	return n
}

func (n NotificationsState) MarkAllRead() NotificationsState {
	if n.UnreadCount() == 0 {
		return n
	}
	next := make([]models.Notification, len(n.Items))
	copy(next, n.Items)
	for i := range next {
		next[i].Read = true
	}
	n.Items = next
	return n
}

func (n NotificationsState) UnreadCount() int {
	count := 0
	for i := range n.Items {
		if !n.Items[i].Read {
			count++
		}
	}
	return count
}

func (n NotificationsState) clone() NotificationsState {
	items := make([]models.Notification, len(n.Items))
	copy(items, n.Items)
	n.Items = items
	return n
}
