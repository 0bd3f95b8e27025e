package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rolewarden/rolewarden/cmd/rolewarden/cli"
	"github.com/rolewarden/rolewarden/internal/app"
	"github.com/rolewarden/rolewarden/jobs"
)

const jobsUsage = `usage: rolewarden jobs <trigger|stats|scheduled>

  trigger [name]  enqueue a job now (default ` + jobs.TaskWebhookProcess + `)
  stats           print queue counters
  scheduled       list upcoming scheduled tasks
`

// runJobs handles the operator subcommand and returns the process exit code.
func runJobs(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, jobsUsage)
		return 1
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect redis: %v\n", err)
		return 1
	}
	defer jobsCLI.Close()

	ctx := context.Background()
	switch args[0] {
	case "trigger":
		name := jobs.TaskWebhookProcess
		if len(args) > 1 {
			name = args[1]
		}
		info, err := jobsCLI.Trigger(ctx, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trigger %s: %v\n", name, err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", name, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "inspect queue: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, 10)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list scheduled: %v\n", err)
			return 1
		}
		for _, task := range tasks {
			fmt.Printf("%s %s next=%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprint(os.Stderr, jobsUsage)
		return 1
	}
	return 0
}
