package natsconn

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/callbridge/natsclient"
)

// JournalStream is the JetStream stream holding recorded frames.
const JournalStream = "CALLBRIDGE_JOURNAL"

// Journal records every frame of a connection to JetStream for later replay or
// audit. Frames land on <prefix>.journal.<id>.in and .out.
type Journal struct {
	client *natsclient.Client
	in     string
	out    string
}

// NewJournal ensures the journal stream exists and returns a journal for
// connection id.
func NewJournal(ctx context.Context, client *natsclient.Client, prefix, id string) (*Journal, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	_, err := client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:      JournalStream,
		Subjects:  []string{prefix + ".journal.>"},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, err
	}
	base := prefix + ".journal." + natsclient.SubjectToken(id)
	return &Journal{client: client, in: base + ".in", out: base + ".out"}, nil
}

// Record stores one frame.
func (j *Journal) Record(ctx context.Context, inbound bool, frame []byte) error {
	subject := j.out
	if inbound {
		subject = j.in
	}
	return j.client.PublishToStream(ctx, subject, frame)
}
