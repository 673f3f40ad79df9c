package main

import (
	"fmt"

	"animegram/internal/database"
	"animegram/internal/seed"

	"github.com/spf13/cobra"
)

var seedOpts = seed.DefaultOptions()

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with demo users, posts, messages and notifications",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := database.Connect(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		res, err := seed.NewSeeder(db, seedOpts).Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"seeded %d users, %d posts, %d likes, %d comments, %d messages, %d notifications\n",
			res.Users, res.Posts, res.Likes, res.Comments, res.Messages, res.Notifications)
		fmt.Fprintf(cmd.OutOrStdout(), "all seeded accounts use the password %q\n", seed.DefaultPassword)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	f := seedCmd.Flags()
	f.IntVar(&seedOpts.NumUsers, "users", seedOpts.NumUsers, "number of users to create")
	f.IntVar(&seedOpts.NumPosts, "posts", seedOpts.NumPosts, "number of posts to create")
	f.IntVar(&seedOpts.Threads, "threads", seedOpts.Threads, "number of direct message threads to create")
	f.Int64Var(&seedOpts.Seed, "seed", seedOpts.Seed, "faker seed; equal seeds produce equal data")
	f.IntVar(&seedOpts.MaxDays, "max-days", seedOpts.MaxDays, "spread post timestamps over this many days")
	f.BoolVar(&seedOpts.ShouldClean, "clean", seedOpts.ShouldClean, "delete existing data before seeding")
}
