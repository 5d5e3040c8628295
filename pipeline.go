package redis

import "context"

// bufferedCommand is one command staged in a Pipeline before the batch
// write.
type bufferedCommand struct {
	name string
	args []interface{}
}

// Pipeline buffers commands client-side and sends them as a single
// transport write on Execute, harvesting replies in buffer order
// (§4.6, §8 scenario 3).
type Pipeline struct {
	handler  *Handler
	conn     *Connection
	commands []bufferedCommand
	done     bool
}

// Add stages one command without sending it.
func (p *Pipeline) Add(name string, args ...interface{}) {
	p.commands = append(p.commands, bufferedCommand{name: name, args: args})
}

// Execute encodes every staged command, writes them in one transport
// call, and returns their replies in the order they were added.
func (p *Pipeline) Execute(ctx context.Context) ([]*Reply, error) {
	defer p.release()

	if len(p.commands) == 0 {
		return nil, nil
	}

	p.conn.mu.Lock()
	charset := p.conn.charset
	p.conn.mu.Unlock()

	bufs := make([][]byte, len(p.commands))
	blocking := make([]bool, len(p.commands))
	for i, cmd := range p.commands {
		buf, err := EncodeCommand(charset, cmd.name, cmd.args...)
		if err != nil {
			return nil, err
		}
		bufs[i] = buf
		blocking[i] = blockingCommands[cmd.name]
	}

	prs, err := p.conn.enqueueAndWriteBatch(bufs, blocking)
	if err != nil {
		return nil, err
	}

	replies := make([]*Reply, len(prs))
	for i, pr := range prs {
		reply, err := p.conn.wait(ctx, pr)
		if err != nil && reply == nil {
			// preserve what we already collected; the caller can see how
			// far the pipeline got before the failure.
			replies[i] = &Reply{Type: ErrReply, Err: toRedisErr(err)}
			continue
		}
		replies[i] = reply
	}
	return replies, nil
}

func (p *Pipeline) release() {
	if p.done {
		return
	}
	p.done = true
	p.conn.endPipeline()
	p.handler.factory.ReleaseConnection(p.conn)
}

func toRedisErr(err error) *RedisError {
	if re, ok := err.(*RedisError); ok {
		return re
	}
	return wrapErr(KindConnectionError, "pipeline command failed", err)
}
