package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fanout/internal/state"
	"github.com/ShayCichocki/fanout/pkg/models"
)

var (
	statusFilter string
	statusClean  bool
	statusStale  time.Duration
	statusPurge  time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status [plan-id]",
	Short: "Show recorded plans",
	Long: `Without arguments, list recorded plans, newest first.
With a plan ID, show that plan and its sub-plans.

Plans still marked executing after --stale are reported as interrupted;
--clean marks them failed. --purge deletes plans older than the given age.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "Only list plans with this status")
	statusCmd.Flags().BoolVar(&statusClean, "clean", false, "Mark interrupted plans as failed")
	statusCmd.Flags().DurationVar(&statusStale, "stale", time.Hour, "Age after which an executing plan counts as interrupted")
	statusCmd.Flags().DurationVar(&statusPurge, "purge", 0, "Delete plans older than this age")
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	out := cmd.OutOrStdout()
	if _, err := os.Stat(e.statePath()); os.IsNotExist(err) {
		fmt.Fprintln(out, "No plans recorded. Run 'fanout run <plan-file>' to start.")
		return nil
	}

	db, err := e.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if statusPurge > 0 {
		n, err := db.PurgeOldPlans(statusPurge)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Purged %d plan(s) older than %s\n", n, statusPurge)
	}

	rm := state.NewRecoveryManager(db)
	if statusClean {
		n, err := rm.Clean(statusStale)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Marked %d interrupted plan(s) as failed\n", n)
	} else {
		interrupted, err := rm.CheckForInterrupted(statusStale)
		if err != nil {
			return err
		}
		for _, ip := range interrupted {
			fmt.Fprintf(out, "%s plan %s has been executing since %s (use --clean)\n",
				color.YellowString("interrupted:"), ip.PlanID, ip.CreatedAt.Local().Format(time.DateTime))
		}
	}

	if len(args) == 1 {
		p, err := db.GetPlan(args[0])
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("plan %s not found", args[0])
		}
		subs, err := db.ListSubPlans(p.ID)
		if err != nil {
			return err
		}
		renderPlanDetail(out, p, subs)
		return nil
	}

	var filter *models.PlanStatus
	if statusFilter != "" {
		s := models.PlanStatus(statusFilter)
		if !s.Valid() {
			return fmt.Errorf("unknown status %q", statusFilter)
		}
		filter = &s
	}
	plans, err := db.ListPlans(filter)
	if err != nil {
		return err
	}
	renderPlanList(out, plans)
	return nil
}
