package redis

import "context"

// Transaction is the bound handle returned by Handler.Multi. Every
// command issued through it is queued server-side (replied to with
// QUEUED) until Commit or Discard releases the underlying Connection
// back to the pool (§4.6).
type Transaction struct {
	handler *Handler
	conn    *Connection
	queued  int
	done    bool
}

// Execute queues one command inside the transaction. The QUEUED status
// reply is returned verbatim so callers can confirm each enqueue, per
// §4.2's "QUEUED is also surfaced as an intermediate reply" rule.
func (t *Transaction) Execute(ctx context.Context, name string, args ...interface{}) (*Reply, error) {
	reply, err := t.conn.Execute(ctx, false, name, args...)
	if err != nil {
		return reply, err
	}
	t.queued++
	return reply, nil
}

// Commit issues EXEC and returns the array of per-command replies. A
// null array (a watched key changed) is surfaced as ErrWatchFailed
// rather than an empty success, per §4.6/§8 scenario 2.
func (t *Transaction) Commit(ctx context.Context) ([]*Reply, error) {
	defer t.release()
	t.handler.opts.Logger.Debugf("conn %s: EXEC (%d queued)", t.conn.ID(), t.queued)
	reply, err := t.conn.Execute(ctx, false, "EXEC")
	if err != nil {
		return nil, err
	}
	if reply.Type == NilReply {
		t.handler.opts.Logger.Warnf("conn %s: watch failed, EXEC returned null", t.conn.ID())
		return nil, ErrWatchFailed
	}
	return reply.Array, nil
}

// Discard issues DISCARD, aborting every queued command.
func (t *Transaction) Discard(ctx context.Context) error {
	defer t.release()
	t.handler.opts.Logger.Debugf("conn %s: DISCARD (%d queued)", t.conn.ID(), t.queued)
	_, err := t.conn.Execute(ctx, false, "DISCARD")
	return err
}

func (t *Transaction) release() {
	if t.done {
		return
	}
	t.done = true
	t.conn.endMulti()
	t.handler.factory.ReleaseConnection(t.conn)
}

// WatchHandle is returned by Handler.Watch: a Connection reserved for
// optimistic-read use until Unwatch releases it or Multi promotes it to
// a full Transaction on the same Connection.
type WatchHandle struct {
	handler *Handler
	conn    *Connection
	done    bool
}

// Execute runs an ordinary command on the watching Connection.
func (w *WatchHandle) Execute(ctx context.Context, name string, args ...interface{}) (*Reply, error) {
	return w.conn.Execute(ctx, false, name, args...)
}

// Multi promotes this watch into a full transaction on the same
// Connection, issuing MULTI without re-sending WATCH.
func (w *WatchHandle) Multi(ctx context.Context) (*Transaction, error) {
	if _, err := w.conn.Execute(ctx, false, "MULTI"); err != nil {
		return nil, err
	}
	w.conn.beginMulti()
	w.done = true
	return &Transaction{handler: w.handler, conn: w.conn}, nil
}

// Unwatch issues UNWATCH and releases the Connection back to the pool.
func (w *WatchHandle) Unwatch(ctx context.Context) error {
	if w.done {
		return nil
	}
	w.done = true
	_, err := w.conn.Execute(ctx, false, "UNWATCH")
	w.handler.factory.ReleaseConnection(w.conn)
	return err
}
