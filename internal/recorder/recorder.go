package recorder

import "HodlFarm/internal/model"

// Recorder persists farm history for auditing and operator queries.
type Recorder interface {
	RecordOperation(evt *model.OperationEvent) error
	RecordPoolSnapshot(stats *model.PoolStats) error
	// RecentOperations returns the newest events for account, newest first.
	RecentOperations(account model.Address, limit int) ([]model.OperationEvent, error)
	Close() error
}
