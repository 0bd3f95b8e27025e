package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rolewarden/rolewarden/jobs"
)

func TestTriggerRejectsUnsupportedJob(t *testing.T) {
	jobsCLI, err := NewJobsCLI("127.0.0.1:0")
	require.NoError(t, err)
	defer jobsCLI.Close()

	_, err = jobsCLI.Trigger(context.Background(), "payroll:run")
	require.ErrorContains(t, err, "unsupported job")
	require.Contains(t, err.Error(), "payroll:run")
}

func TestJobsCLIGuardsAgainstMissingClients(t *testing.T) {
	empty := &JobsCLI{}

	_, err := empty.Trigger(context.Background(), jobs.TaskWebhookProcess)
	require.ErrorContains(t, err, "client not configured")

	_, err = empty.InspectQueue(context.Background())
	require.ErrorContains(t, err, "inspector not configured")

	_, err = empty.ListScheduled(context.Background(), 5)
	require.ErrorContains(t, err, "inspector not configured")
}
