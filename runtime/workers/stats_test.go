package workers_test

import (
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedGauges struct{}

func (fixedGauges) ActiveSessions() int      { return 3 }
func (fixedGauges) ActiveChannels() int      { return 5 }
func (fixedGauges) TypingStates() int        { return 1 }
func (fixedGauges) DeliveryFailures() uint64 { return 2 }

func TestStatsWorker_Publishes_Snapshot(t *testing.T) {
	req := require.New(t)
	monitoring := observability.NewMonitoringManager()
	worker := workers.NewStatsWorker(slog.Default(), fixedGauges{}, monitoring, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req.NoError(worker.Run(ctx))

	stats := monitoring.GetLatest()
	req.Equal(3, stats.ActiveSessions)
	req.Equal(5, stats.ActiveChannels)
	req.Equal(1, stats.TypingStates)
	req.Equal(uint64(2), stats.DeliveryFailures)
	req.NotEmpty(stats.SampledAt)
}
