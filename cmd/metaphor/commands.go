package main

import (
	"context"
	"fmt"
	"strings"

	"metaphorspace/internal/htmltext"
	"metaphorspace/internal/model"
	"metaphorspace/internal/theme"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	query      string
	pages      int
	likedPages int
	maxPages   int
	toggle     bool
)

var storiesCmd = &cobra.Command{
	Use:   "stories",
	Short: "List stories, optionally filtered by title",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := newApp(ctx, client)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer a.close()

		a.feed.Start(ctx)
		for a.feed.Cursor() <= pages {
			a.feed.LoadNextPage(ctx)
		}
		a.feed.SetQuery(query)

		sc := a.theme.Scheme()
		visible := a.feed.Visible()
		if len(visible) == 0 {
			sc.Muted.Println("No stories.")
			return
		}
		for _, st := range visible {
			printStoryLine(sc, st, a.feed.IsLiked(st.ID))
		}
		sc.Muted.Printf("\n%d of %d stories, %d page(s)\n", len(visible), a.feed.Len(), a.feed.Cursor()-1)
	},
}

var likeCmd = &cobra.Command{
	Use:   "like [id]",
	Short: "Toggle the like on a story",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			logger.Fatal("Bad argument", zap.Error(err))
		}

		ctx := context.Background()
		a, err := newApp(ctx, client)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer a.close()

		a.feed.LoadLiked(ctx)
		sc := a.theme.Scheme()
		if a.feed.ToggleLike(id) {
			sc.Success.Printf("♥ liked story %d\n", id)
		} else {
			sc.Muted.Printf("♡ unliked story %d\n", id)
		}
	},
}

var likedCmd = &cobra.Command{
	Use:   "liked",
	Short: "Show liked stories",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := newApp(ctx, client)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer a.close()

		a.feed.LoadLiked(ctx)
		sc := a.theme.Scheme()
		ids := a.feed.LikedIDs()
		if len(ids) == 0 {
			sc.Muted.Println("You haven't liked any stories yet.")
			return
		}
		sc.Title.Printf("Liked: %v\n\n", ids)

		for a.feed.Cursor() <= likedPages {
			a.feed.LoadNextPage(ctx)
		}
		for _, st := range a.feed.LikedStories() {
			printStoryLine(sc, st, true)
		}
	},
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a story",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			logger.Fatal("Bad argument", zap.Error(err))
		}

		ctx := context.Background()
		a, err := newApp(ctx, client)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer a.close()

		a.feed.LoadLiked(ctx)
		st, ok := a.findStory(ctx, id, maxPages)
		sc := a.theme.Scheme()
		if !ok {
			sc.Error.Printf("Story %d not found in the first %d page(s)\n", id, maxPages)
			return
		}

		printStoryLine(sc, st, a.feed.IsLiked(st.ID))
		if !st.Date.IsZero() {
			sc.Muted.Println(st.Date.Format("Jan 02, 2006"))
		}
		if st.HasImage() {
			sc.Muted.Println(st.FeaturedMediaURL)
		}
		fmt.Println()
		sc.Text.Println(htmltext.Readable(st.Title, st.Content, st.Link))
		if st.Link != "" {
			sc.Accent.Printf("\n%s\n", st.Link)
		}
	},
}

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Show the colour palette",
	Run: func(cmd *cobra.Command, args []string) {
		th := theme.New(cfg.Theme.Dark)
		if toggle {
			th.Toggle()
		}
		printPalette(th)
	},
}

func printStoryLine(sc theme.Scheme, st model.Story, liked bool) {
	heart := "♡"
	if liked {
		heart = "♥"
	}
	sc.Accent.Printf("%s %6d  ", heart, st.ID)
	sc.Title.Println(st.PlainTitle())
	if ex := st.PlainExcerpt(); ex != "" {
		sc.Muted.Printf("          %s\n", htmltext.Truncate(strings.ReplaceAll(ex, "\n", " "), 120))
	}
}

func printPalette(th *theme.Settings) {
	sc := th.Scheme()
	mode := "light"
	if th.Dark() {
		mode = "dark"
	}
	sc.Title.Printf("Theme: %s\n", mode)

	p := th.Palette()
	for _, row := range [][2]string{
		{"background", p.Background},
		{"card", p.Card},
		{"text", p.Text},
		{"accent", p.Accent},
		{"border", p.Border},
	} {
		sc.Text.Printf("  %-10s ", row[0])
		sc.Accent.Println(row[1])
	}
}

func init() {
	storiesCmd.Flags().StringVarP(&query, "query", "q", "", "Only show stories whose title contains this")
	storiesCmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to load")
	likedCmd.Flags().IntVar(&likedPages, "pages", 3, "Pages to load when resolving liked stories")
	showCmd.Flags().IntVar(&maxPages, "max-pages", 5, "Give up after this many pages")
	chatCmd.Flags().IntVar(&maxPages, "max-pages", 5, "Give up after this many pages")
	themeCmd.Flags().BoolVar(&toggle, "toggle", false, "Flip the configured theme before printing")
}
