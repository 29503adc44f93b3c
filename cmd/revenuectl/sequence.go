package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/revenue/sequence"
	revredis "github.com/xraph/revenue/store/redis"
)

func sequenceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Inspect and allocate document numbers",
	}
	cmd.AddCommand(sequenceNextCmd(a), sequencePeekCmd(a), sequenceTypesCmd())
	return cmd
}

func sequenceNextCmd(a *app) *cobra.Command {
	var (
		date string
		seed int64
	)
	cmd := &cobra.Command{
		Use:   "next <doc-type>",
		Short: "Allocate the next number for a document type",
		Long: "Allocate the next number for a document type. When the day's counter\n" +
			"does not exist yet it is created at --seed, which should be the number\n" +
			"of documents already issued under that day's prefix.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, at, err := parseTarget(args[0], date)
			if err != nil {
				return err
			}
			gen := a.generator(sequence.CensusFunc(func(context.Context, sequence.Key) (int64, error) {
				return seed, nil
			}))
			number, err := gen.NextNumber(cmd.Context(), dt, at)
			if err != nil {
				return err
			}
			a.logger.Info("number allocated", "doc_type", dt, "number", number)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), number)
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "calendar day (YYYY-MM-DD, default today UTC)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "starting count when the counter is created")
	return cmd
}

func sequencePeekCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "peek <doc-type>",
		Short: "Show the last number allocated without allocating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, at, err := parseTarget(args[0], date)
			if err != nil {
				return err
			}
			key := sequence.KeyFor(dt, at)
			v, err := a.generator(sequence.EmptyCensus).Peek(cmd.Context(), dt, key.Day)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if v == 0 {
				_, err = fmt.Fprintf(out, "%s none\n", key)
				return err
			}
			_, err = fmt.Fprintf(out, "%s %d %s\n", key, v, sequence.Format(key, v))
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "calendar day (YYYY-MM-DD, default today UTC)")
	return cmd
}

func sequenceTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List document types and their number prefixes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, dt := range sequence.DocTypes() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", dt, dt.Prefix()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) generator(census sequence.Census) *sequence.Generator {
	st := revredis.NewSequenceStore(a.rdb,
		revredis.WithKeyPrefix(a.cfg.SequenceKeyPrefix),
		revredis.WithRetention(a.cfg.SequenceRetention),
	)
	return sequence.NewGenerator(st, census, sequence.WithLogger(a.logger))
}

func parseTarget(rawType, date string) (sequence.DocType, time.Time, error) {
	dt := sequence.DocType(strings.ToLower(rawType))
	if !dt.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown document type %q", rawType)
	}
	if date == "" {
		return dt, time.Now().UTC(), nil
	}
	at, err := time.Parse(sequence.DayLayout, date)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid --date %q: %w", date, err)
	}
	return dt, at, nil
}
