package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/marketflow/marketflow/pkg/domain"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	pubErr   error
	flushed  bool
	closed   bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Flush() error { f.flushed = true; return nil }
func (f *fakeConn) Close()       { f.closed = true }

func sampleResult() *domain.CollectionResult {
	return &domain.CollectionResult{
		ID:          "res-1",
		RequestID:   "req-1",
		CollectorID: "sec-edgar",
		Quadrant:    domain.QuadrantGovernmentFree,
		Symbols:     []string{"AAPL"},
		DataType:    domain.UseCaseFilings,
		CollectedAt: time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
		Payload:     json.RawMessage(`{"filings":[]}`),
	}
}

func TestPublishRoutesByCollector(t *testing.T) {
	conn := &fakeConn{}
	pub, err := newResultPublisher(conn, "marketflow.results", zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), sampleResult()))
	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "marketflow.results.sec-edgar", conn.subjects[0])

	var decoded domain.CollectionResult
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, "res-1", decoded.ID)
	assert.Equal(t, domain.UseCaseFilings, decoded.DataType)
}

func TestPublishDefaultsPrefix(t *testing.T) {
	conn := &fakeConn{}
	pub, err := newResultPublisher(conn, "", zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), sampleResult()))
	assert.Equal(t, DefaultSubjectPrefix+".sec-edgar", conn.subjects[0])
}

func TestPublishRejectsNilResult(t *testing.T) {
	pub, err := newResultPublisher(&fakeConn{}, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Error(t, pub.Publish(context.Background(), nil))
}

func TestPublishWrapsTransportError(t *testing.T) {
	wire := errors.New("connection reset")
	pub, err := newResultPublisher(&fakeConn{pubErr: wire}, "", zaptest.NewLogger(t))
	require.NoError(t, err)

	err = pub.Publish(context.Background(), sampleResult())
	require.ErrorIs(t, err, wire)
}

func TestCloseFlushesBeforeClosing(t *testing.T) {
	conn := &fakeConn{}
	pub, err := newResultPublisher(conn, "", zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, pub.Close())
	assert.True(t, conn.flushed)
	assert.True(t, conn.closed)
}
