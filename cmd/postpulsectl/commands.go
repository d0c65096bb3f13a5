package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/postpulse/postpulse-backend/internal/app"
	"github.com/postpulse/postpulse-backend/internal/pipeline"
	"github.com/postpulse/postpulse-backend/internal/posts"
	"github.com/postpulse/postpulse-backend/internal/repository"
	"github.com/postpulse/postpulse-backend/internal/synergy"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func timelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline",
		Short: "Print the merged post timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			res, err := run(cmd.Context(), e)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(os.Stdout, res.Posts)
			}
			return renderTimeline(os.Stdout, res)
		},
	}
}

func analyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Print content histogram, hashtags, totals and trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			res, err := run(cmd.Context(), e)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(os.Stdout, res.Analytics)
			}
			return renderAnalytics(os.Stdout, res)
		},
	}
}

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Print the profile sub-scores and overall score",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			res, err := run(cmd.Context(), e)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(os.Stdout, map[string]any{"scores": res.Scores, "inputs": res.ScoreInputs})
			}
			return renderScores(os.Stdout, res)
		},
	}
}

func partnersCmd() *cobra.Command {
	partners := &cobra.Command{Use: "partners", Short: "Synergy partner operations"}

	withService := func(fn func(cmd *cobra.Command, svc *synergy.Service, tok string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			tok, err := token()
			if err != nil {
				return err
			}
			e, err := newEnv()
			if err != nil {
				return err
			}
			repo, err := app.NewRepository(e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer repo.Close()
			return fn(cmd, synergy.NewService(repo, e.svc, e.svc.Provider(), e.logger), tok)
		}
	}

	partners.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List partners",
		RunE: withService(func(cmd *cobra.Command, svc *synergy.Service, tok string) error {
			list, err := svc.ListPartners(cmd.Context(), tok)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(os.Stdout, list)
			}
			return renderPartners(os.Stdout, list)
		}),
	})

	var name string
	add := &cobra.Command{
		Use:   "add PERSON_URN",
		Short: "Add a partner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(cmd *cobra.Command, svc *synergy.Service, tok string) error {
				p, err := svc.AddPartner(cmd.Context(), tok, name, args[0])
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(os.Stdout, p)
				}
				fmt.Fprintf(os.Stdout, "added %s (%s)\n", p.Name, p.ID)
				return nil
			})(cmd, args)
		},
	}
	add.Flags().StringVarP(&name, "name", "n", "", "Partner display name (required)")
	_ = add.MarkFlagRequired("name")
	partners.AddCommand(add)

	partners.AddCommand(&cobra.Command{
		Use:   "remove PARTNER_ID",
		Short: "Remove a partner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid partner id: %w", err)
			}
			return withService(func(cmd *cobra.Command, svc *synergy.Service, tok string) error {
				return svc.RemovePartner(cmd.Context(), tok, id)
			})(cmd, args)
		},
	})

	return partners
}

func renderTimeline(w io.Writer, res *pipeline.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPOSTED\tTYPE\tLIKES\tCOMMENTS\tSHARES\tSOURCE\tTEXT")
	for _, p := range res.Posts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			p.ID,
			time.UnixMilli(p.Timestamp).Format("2006-01-02"),
			p.MediaType,
			p.Likes, p.Comments, p.Shares,
			p.Source,
			truncate(p.Text, 48),
		)
	}
	if len(res.Degraded) > 0 {
		fmt.Fprintf(tw, "\ndegraded sources: %s\n", strings.Join(res.Degraded, ", "))
	}
	return tw.Flush()
}

func renderAnalytics(w io.Writer, res *pipeline.Result) error {
	a := res.Analytics
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "posts\t%d\n", a.Totals.Posts)
	fmt.Fprintf(tw, "engagement\t%d\n", a.Totals.Engagement)
	fmt.Fprintf(tw, "avg engagement/post\t%.2f\n", a.Totals.AvgEngagementPerPost)
	fmt.Fprintf(tw, "engagement rate\t%.2f%%\n", a.Totals.EngagementRatePercent)
	fmt.Fprintf(tw, "connections\t%d\n", res.Connections)

	fmt.Fprintln(tw, "\nTYPE\tPOSTS")
	for _, mt := range posts.MediaTypes {
		fmt.Fprintf(tw, "%s\t%d\n", mt, a.Histogram[mt])
	}

	fmt.Fprintln(tw, "\nHASHTAG\tCOUNT")
	for _, h := range a.Hashtags {
		fmt.Fprintf(tw, "%s\t%d\n", h.Tag, h.Count)
	}

	fmt.Fprintln(tw, "\nDATE\tPOSTS\tENGAGEMENTS")
	for _, d := range a.Trend {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", d.Date, d.Posts, d.Engagements)
	}
	return tw.Flush()
}

func renderScores(w io.Writer, res *pipeline.Result) error {
	s := res.Scores
	rows := map[string]int{
		"profile completeness": s.ProfileCompleteness,
		"posting activity":     s.PostingActivity,
		"engagement quality":   s.EngagementQuality,
		"network growth":       s.NetworkGrowth,
		"content diversity":    s.ContentDiversity,
		"engagement rate":      s.EngagementRate,
		"mutual interactions":  s.MutualInteractions,
	}
	names := make([]string, 0, len(rows))
	for name := range rows {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d/10\n", name, rows[name])
	}
	fmt.Fprintf(tw, "overall\t%.1f/10\n", s.Overall)
	return tw.Flush()
}

func renderPartners(w io.Writer, list []repository.Partner) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tURN\tADDED")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.PartnerURN, p.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
