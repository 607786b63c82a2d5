package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/session"
)

// ReplayFlags drive an offline walk through one seeded room.
type ReplayFlags struct {
	Messages int
	Appends  int
	Pages    int
	JSON     bool
}

func NewReplayFlags() *ReplayFlags {
	return &ReplayFlags{Messages: 52, Appends: 25, Pages: -1}
}

func (f *ReplayFlags) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&f.Messages, "messages", f.Messages, "messages seeded into the room")
	fs.IntVar(&f.Appends, "appends", f.Appends, "messages posted one by one after paging")
	fs.IntVar(&f.Pages, "pages", f.Pages, "older pages to load; -1 loads until the start of the room")
	fs.BoolVar(&f.JSON, "json", f.JSON, "print one JSON object per step")
}

// replayStep is one printed line of a replay.
type replayStep struct {
	Step         string `json:"step"`
	Kind         string `json:"kind"`
	Messages     int    `json:"messages"`
	First        string `json:"first,omitempty"`
	Last         string `json:"last,omitempty"`
	VisibleStart int    `json:"visible_start"`
	VisibleEnd   int    `json:"visible_end"`
	Total        int    `json:"total"`
	HasOlder     bool   `json:"has_older"`
}

func stepOf(name string, up session.Update) replayStep {
	s := replayStep{
		Step:         name,
		Kind:         up.Kind.String(),
		Messages:     len(up.Messages),
		VisibleStart: up.VisibleStart,
		VisibleEnd:   up.VisibleEnd,
		Total:        up.Total,
		HasOlder:     up.HasOlder,
	}
	if n := len(up.Messages); n > 0 {
		s.First = up.Messages[0].Text()
		s.Last = up.Messages[n-1].Text()
	}
	return s
}

func init() {
	f := NewReplayFlags()

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Seed a room in memory and print how its display window evolves",
		Long: `replay seeds one room, opens it the way a renderer does, pages through older
history and then posts messages one at a time, printing the visible range after
each step. Nothing is persisted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}

	f.BindFlags(cmd.Flags())
	rootCmd.AddCommand(cmd)
}

func runReplay(ctx context.Context, out io.Writer, f ReplayFlags) error {
	if f.Messages < 0 || f.Appends < 0 {
		return fmt.Errorf("replay: --messages and --appends must not be negative")
	}

	epoch := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := epoch.Add(time.Duration(f.Messages) * time.Minute)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	gen := ids.NewGenerator()
	room, err := ids.NewID(ids.TableRoom, epoch)
	if err != nil {
		return err
	}
	author, err := ids.NewID(ids.TableAccount, epoch)
	if err != nil {
		return err
	}

	st := session.NewMemoryStore()
	if err := session.SeedStore(ctx, st, gen, room, author, f.Messages, epoch, time.Minute); err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := session.NewHub(log, st, session.WithGenerator(gen), session.WithClock(now))

	r, err := hub.Open(ctx, room)
	if err != nil {
		return err
	}

	// replay reads the room the way one renderer does: updates arrive through its subscription
	var last session.Update
	snap := r.Join("replay", func(up session.Update) { last = up })
	defer r.Unsubscribe("replay")

	var steps []replayStep
	steps = append(steps, stepOf("open", snap))

	for page := 1; f.Pages < 0 || page <= f.Pages; page++ {
		up := r.LoadOlder("replay")
		steps = append(steps, stepOf(fmt.Sprintf("older#%d", page), up))
		if !up.HasOlder {
			break
		}
	}

	for i := range f.Appends {
		if _, _, err := hub.Post(ctx, room, author, fmt.Sprintf("Appended message no: %d", i+1), time.Time{}); err != nil {
			return err
		}
		steps = append(steps, stepOf(fmt.Sprintf("post#%d", i+1), last))
	}

	if f.JSON {
		enc := json.NewEncoder(out)
		for _, s := range steps {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tKIND\tMSGS\tVISIBLE\tTOTAL\tOLDER\tFIRST\tLAST")
	for _, s := range steps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t[%d,%d)\t%d\t%v\t%s\t%s\n",
			s.Step, s.Kind, s.Messages, s.VisibleStart, s.VisibleEnd, s.Total, s.HasOlder, s.First, s.Last)
	}
	return tw.Flush()
}
