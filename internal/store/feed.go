package store

import "animegram/internal/models"

// FeedState is the paginated list of posts shown in the main feed.
// Error is empty when the last load did not fail.
type FeedState struct {
	Posts   []models.Post `json:"posts"`
	Loading bool          `json:"loading"`
	Error   string        `json:"error"`
	HasMore bool          `json:"has_more"`
	Page    int           `json:"page"`
}

// NewFeedState returns the initial feed: empty, first page next, more to load.
func NewFeedState() FeedState {
	return FeedState{Posts: []models.Post{}, HasMore: true, Page: 1}
}

// StartLoading marks a fetch as in flight and clears the last error.
func (f FeedState) StartLoading() FeedState {
	f.Loading = true
	f.Error = ""
	return f
}

// LoadSucceeded appends a fetched page in pagination order and advances the
// page counter by one. Posts already in the feed are not appended again.
func (f FeedState) LoadSucceeded(posts []models.Post, hasMore bool) FeedState {
	seen := make(map[string]struct{}, len(f.Posts)+len(posts))
	for i := range f.Posts {
		seen[f.Posts[i].ID] = struct{}{}
	}
	next := make([]models.Post, len(f.Posts), len(f.Posts)+len(posts))
	copy(next, f.Posts)
	for _, p := range posts {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		next = append(next, p)
	}

	f.Posts = next
	f.Loading = false
	f.HasMore = hasMore
	f.Page++
	f.Error = ""
	return f
}

// LoadFailed records the failure. Loaded posts and the page counter are kept.
func (f FeedState) LoadFailed(message string) FeedState {
	f.Loading = false
	f.Error = message
	return f
}

// Reset empties the feed for a new viewing context.
func (f FeedState) Reset() FeedState {
	f.Posts = []models.Post{}
	f.Page = 1
	f.HasMore = true
	return f
}

// AddLocal puts a locally created post at the front. A post with the same ID
// already in the feed is moved rather than duplicated.
func (f FeedState) AddLocal(post models.Post) FeedState {
	next := make([]models.Post, 0, len(f.Posts)+1)
	next = append(next, post)
	for _, p := range f.Posts {
		if p.ID != post.ID {
			next = append(next, p)
		}
	}
	f.Posts = next
	return f
}

// Remove drops the post with the given ID.
func (f FeedState) Remove(postID string) FeedState {
	if f.indexOf(postID) < 0 {
		return f
	}
	next := make([]models.Post, 0, len(f.Posts)-1)
	for _, p := range f.Posts {
		if p.ID != postID {
			next = append(next, p)
		}
	}
	f.Posts = next
	return f
}

// Like marks the post liked by the viewer. Liking an already liked post
// changes nothing.
func (f FeedState) Like(postID string) FeedState {
	return f.update(postID, func(p *models.Post) bool {
		if p.IsLiked {
			return false
		}
		p.IsLiked = true
		p.Likes++
		return true
	})
}

// Unlike reverts a like. Unliking a post that is not liked changes nothing,
// so the like count never goes below zero.
func (f FeedState) Unlike(postID string) FeedState {
	return f.update(postID, func(p *models.Post) bool {
		if !p.IsLiked {
			return false
		}
		p.IsLiked = false
		if p.Likes > 0 {
			p.Likes--
		}
		return true
	})
}

// IncrementCommentCount bumps the comment counter of the post.
func (f FeedState) IncrementCommentCount(postID string) FeedState {
	return f.update(postID, func(p *models.Post) bool {
		p.Comments++
		return true
	})
}

// Post looks up a post by ID.
func (f FeedState) Post(postID string) (models.Post, bool) {
	if i := f.indexOf(postID); i >= 0 {
		return f.Posts[i], true
	}
	return models.Post{}, false
}

func (f FeedState) indexOf(postID string) int {
	for i := range f.Posts {
		if f.Posts[i].ID == postID {
			return i
		}
	}
	return -1
}

// update applies mutate to a copy of the matching post and swaps it into a
// copied slice, leaving earlier snapshots untouched.
func (f FeedState) update(postID string, mutate func(*models.Post) bool) FeedState {
	i := f.indexOf(postID)
	if i < 0 {
		return f
	}
	p := f.Posts[i]
	if !mutate(&p) {
		return f
	}
	next := make([]models.Post, len(f.Posts))
	copy(next, f.Posts)
	next[i] = p
	f.Posts = next
	return f
}

func (f FeedState) clone() FeedState {
	posts := make([]models.Post, len(f.Posts))
	copy(posts, f.Posts)
	f.Posts = posts
	return f
}
