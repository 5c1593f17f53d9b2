package recorder

import "HodlFarm/internal/model"

// NoopRecorder is used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordOperation(_ *model.OperationEvent) error { return nil }
func (n *NoopRecorder) RecordPoolSnapshot(_ *model.PoolStats) error  { return nil }
func (n *NoopRecorder) RecentOperations(_ model.Address, _ int) ([]model.OperationEvent, error) {
	return nil, nil
}
func (n *NoopRecorder) Close() error { return nil }
