package serviceclient

import "encoding/json"

// optimisticTx snapshots one cached entry so a mutation can be applied
// eagerly and undone if the network rejects it. Every mutation settles the
// transaction exactly one way: Commit with the server result on success,
// Rollback on failure. Rollback restores the exact cached bytes, including
// when the entry was absent (restoring nothing).
type optimisticTx struct {
	path     string
	prior    json.RawMessage
	hadPrior bool

	transport Transport
}

func (r *Resource[T, C]) beginOptimistic(path string) *optimisticTx {
	tx := &optimisticTx{path: path, transport: r.transport}
	tx.hadPrior = r.transport.Cached(path, nil, &tx.prior)
	return tx
}

// Apply removes the entry, making the mutation visible immediately.
func (tx *optimisticTx) Apply() {
	tx.transport.Evict(tx.path)
}

// Commit settles the transaction with the server result: a non-nil result is
// primed under the path, replacing the snapshot. A nil result (deletes)
// leaves the entry absent.
func (tx *optimisticTx) Commit(serverResult any) error {
	if serverResult == nil {
		return nil
	}
	return tx.transport.Prime(tx.path, nil, serverResult)
}

// Rollback restores the snapshot taken at begin time. Entries that did not
// exist stay absent.
func (tx *optimisticTx) Rollback() {
	if !tx.hadPrior {
		return
	}
	_ = tx.transport.Prime(tx.path, nil, tx.prior)
}
