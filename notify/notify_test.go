package notify_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/notify"
)

func TestFormatAmount(t *testing.T) {
	s, err := notify.FormatAmount(125000, "USD")
	require.NoError(t, err)
	assert.Equal(t, "USD 1,250.00", s)

	// Yen has no minor unit.
	s, err = notify.FormatAmount(5000, "JPY")
	require.NoError(t, err)
	assert.Equal(t, "JPY 5,000", s)
}

func TestFormatAmountRejectsUnknownCurrency(t *testing.T) {
	_, err := notify.FormatAmount(100, "ZZZ")
	assert.Error(t, err)
}

func TestLogSenderNeverFails(t *testing.T) {
	s := notify.NewLogSender(slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := s.Send(context.Background(), notify.Message{To: "a@example.com", Subject: "payout issued"})
	assert.NoError(t, err)
}
