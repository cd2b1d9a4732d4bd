package forward

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/lorarelay/helpers"
	"github.com/temoto/lorarelay/internal/metrics"
	"github.com/temoto/lorarelay/log2"
	"github.com/temoto/spq"
)

type sendFunc func(ctx context.Context, payload []byte) error

// spool persists failed payloads and redelivers them with backoff.
type spool struct {
	log     *log2.Log
	q       *spq.Queue
	send    sendFunc
	backoff helpers.Backoff
	alive   *alive.Alive
	started uint32
	pending int64
}

func openSpool(path string, log *log2.Log, b helpers.Backoff, send sendFunc) (*spool, error) {
	q, err := spq.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "spq open path=%s", path)
	}
	return &spool{
		log:     log,
		q:       q,
		send:    send,
		backoff: b,
		alive:   alive.NewAlive(),
	}, nil
}

func (self *spool) Push(payload []byte) error {
	if err := self.q.Push(payload); err != nil {
		return err
	}
	self.addPending(1)
	return nil
}

func (self *spool) Start(ctx context.Context) {
	if !atomic.CompareAndSwapUint32(&self.started, 0, 1) {
		return
	}
	if !self.alive.Add(1) {
		return
	}
	go func() {
		defer self.alive.Done()
		self.qworker(ctx)
	}()
	go func() {
		select {
		case <-ctx.Done():
			self.alive.Stop()
		case <-self.alive.StopChan():
		}
		_ = self.q.Close()
	}()
}

func (self *spool) Close() error {
	self.alive.Stop()
	err := self.q.Close()
	if atomic.LoadUint32(&self.started) == 1 {
		self.alive.Wait()
	}
	return err
}

func (self *spool) qworker(ctx context.Context) {
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			if !self.sleep(self.backoff.DelayBefore()) {
				return
			}
			b := box.Bytes()
			err = self.send(ctx, b)
			self.backoff.Update(err == nil)
			if err == nil {
				metrics.SendCounter("spool", metrics.SendRetryOK).Inc()
				self.addPending(-1)
				self.log.Debugf("spool redelivered len=%d", len(b))
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("spool Delete err=%v", err)
				}
			} else {
				metrics.SendCounter("spool", metrics.SendRetryErr).Inc()
				self.log.Debugf("spool retry err=%v next=%s", err, self.backoff.Next())
				// rotate to the end so one bad payload does not block the rest
				if err = self.q.DeletePush(box); err != nil {
					self.log.Errorf("spool DeletePush err=%v", err)
				}
			}

		case spq.ErrClosed:
			if self.alive.IsRunning() {
				self.log.Errorf("CRITICAL spool closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL spool err=%v", err)
			if !self.sleep(time.Second) {
				return
			}
		}
	}
}

// sleep returns false when stopped.
func (self *spool) sleep(d time.Duration) bool {
	if d == 0 {
		return self.alive.IsRunning()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-self.alive.StopChan():
		return false
	}
}

// pending only counts pushes of this process, payloads left from previous run are not known.
func (self *spool) addPending(delta int64) {
	n := atomic.AddInt64(&self.pending, delta)
	if n < 0 {
		n = 0
	}
	metrics.SpoolGauge().Set(float64(n))
}
