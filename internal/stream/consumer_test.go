package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/events"
)

// fakeClient records acknowledgements and appended messages.
type fakeClient struct {
	acked []string
	added []*redis.XAddArgs
}

func (f *fakeClient) XGroupCreateMkStream(ctx context.Context, _, _, _ string) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) XReadGroup(ctx context.Context, _ *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
}

func (f *fakeClient) XAutoClaim(ctx context.Context, _ *redis.XAutoClaimArgs) *redis.XAutoClaimCmd {
	cmd := redis.NewXAutoClaimCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}

func (f *fakeClient) XAck(_ context.Context, _, _ string, ids ...string) *redis.IntCmd {
	f.acked = append(f.acked, ids...)
	return redis.NewIntResult(int64(len(ids)), nil)
}

func (f *fakeClient) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, a)
	return redis.NewStringResult(fmt.Sprintf("%d-0", len(f.added)), nil)
}

type handlerFunc func(ctx context.Context, domain string, env events.Envelope) error

func (h handlerFunc) Handle(ctx context.Context, domain string, env events.Envelope) error {
	return h(ctx, domain, env)
}

func message(id string, values map[string]any) redis.XMessage {
	return redis.XMessage{ID: id, Values: values}
}

func validValues() map[string]any {
	return map[string]any{"stream_id": "a1", "version": "1", "type": "AgreementActivated", "data": "{}"}
}

func TestProcess(t *testing.T) {
	cfg := config.StreamConfig{Group: "g", Consumer: "c"}

	tests := []struct {
		name       string
		values     map[string]any
		handlerErr error
		acked      bool
		movedTo    string
		status     func(Status) int64
	}{
		{
			name:   "success is acknowledged",
			values: validValues(),
			acked:  true,
			status: func(s Status) int64 { return s.Acked },
		},
		{
			name:       "infrastructure failure stays pending",
			values:     validValues(),
			handlerErr: errors.New("connection refused"),
			status:     func(s Status) int64 { return s.Failed },
		},
		{
			name:       "integrity fault is parked",
			values:     validValues(),
			handlerErr: core.Integrity("read", "AGREEMENT#a1", core.ErrCorruptRecord),
			acked:      true,
			movedTo:    "events:agreement:integrity",
			status:     func(s Status) int64 { return s.Parked },
		},
		{
			name:       "malformed payload is dead-lettered",
			values:     validValues(),
			handlerErr: fmt.Errorf("projecting: %w", events.ErrMalformedEvent),
			acked:      true,
			movedTo:    "events:agreement:dead",
			status:     func(s Status) int64 { return s.DeadLettered },
		},
		{
			name:    "malformed envelope is dead-lettered",
			values:  map[string]any{"data": "{}"},
			acked:   true,
			movedTo: "events:agreement:dead",
			status:  func(s Status) int64 { return s.DeadLettered },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			monitor := NewMonitor()
			var got events.Envelope
			handler := handlerFunc(func(_ context.Context, domain string, env events.Envelope) error {
				require.Equal(t, events.DomainAgreement, domain)
				got = env
				return tt.handlerErr
			})
			c := NewConsumer(client, cfg, handler, monitor)

			c.process(context.Background(), events.DomainAgreement, "events:agreement", message("1-0", tt.values))

			if tt.acked {
				require.Equal(t, []string{"1-0"}, client.acked)
			} else {
				require.Empty(t, client.acked)
			}
			if tt.movedTo != "" {
				require.Len(t, client.added, 1)
				require.Equal(t, tt.movedTo, client.added[0].Stream)
				values := client.added[0].Values.(map[string]any)
				require.Equal(t, "1-0", values["original_id"])
				if tt.handlerErr != nil {
					require.Equal(t, tt.handlerErr.Error(), values["error"])
				}
			} else {
				require.Empty(t, client.added)
			}
			if tt.values["stream_id"] != nil {
				require.Equal(t, int64(1), got.Version)
			}

			list := monitor.List()
			require.Len(t, list, 1)
			require.Equal(t, int64(1), tt.status(list[0]))
			require.Equal(t, "1-0", list[0].LastMessage)

			failures, err := monitor.Failures(events.DomainAgreement)
			require.NoError(t, err)
			if tt.handlerErr == nil && tt.movedTo == "" {
				require.Empty(t, failures)
			} else {
				require.Len(t, failures, 1)
			}
		})
	}
}

func TestMonitor_FailureLogIsBounded(t *testing.T) {
	m := NewMonitor()
	tr := m.tracker("catalog")
	for i := 0; i < MaxFailuresPerConsumer+10; i++ {
		tr.record(fmt.Sprintf("%d-0", i), outcomePending, errors.New("boom"))
	}
	failures, err := m.Failures("catalog")
	require.NoError(t, err)
	require.Len(t, failures, MaxFailuresPerConsumer)
	require.Equal(t, "10-0", failures[0].MessageID)

	_, err = m.Failures("billing")
	require.ErrorAs(t, err, &ConsumerNotFoundError{})
}

func TestPublish(t *testing.T) {
	client := &fakeClient{}
	cfg := config.StreamConfig{Streams: map[string]string{events.DomainCatalog: "catalog-events"}}
	env := events.Envelope{StreamID: "e1", Version: 2, Type: "EServiceDescriptorPublished", Data: "{}"}

	id, err := Publish(context.Background(), client, cfg, events.DomainCatalog, env)
	require.NoError(t, err)
	require.Equal(t, "1-0", id)
	require.Equal(t, "catalog-events", client.added[0].Stream)
	require.Equal(t, env.Values(), client.added[0].Values)
}
