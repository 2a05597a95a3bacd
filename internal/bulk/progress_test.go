package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// captureHook records commands and answers them without touching the network.
type captureHook struct {
	args [][]interface{}
}

func (h *captureHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (h *captureHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.args = append(h.args, cmd.Args())
		return nil
	}
}

func (h *captureHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error { return nil }
}

// unreachable is a local port nothing listens on, so dials are refused at once.
const unreachable = "127.0.0.1:1"

func TestRedisPublisher_PublishesJSONOnOperationChannel(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: unreachable})
	defer client.Close()
	hook := &captureHook{}
	client.AddHook(hook)
	p := NewRedisPublisherWithClient(client, nil)

	pr := Progress{OperationID: "op1", Kind: KindMemberRemoval, Processed: 2, Total: 3, Percent: 66}
	if err := p.Observe(context.Background(), pr); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if len(hook.args) != 1 {
		t.Fatalf("commands = %v, want one publish", hook.args)
	}
	args := hook.args[0]
	if len(args) != 3 || args[0] != "publish" || args[1] != "bulk:progress:op1" {
		t.Fatalf("args = %v", args)
	}
	var raw []byte
	switch v := args[2].(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		t.Fatalf("payload type = %T", v)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("payload %q: %v", raw, err)
	}
	want := map[string]any{"operationId": "op1", "kind": "member_removal", "processed": 2.0, "total": 3.0, "percent": 66.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("payload = %v, want %v", got, want)
	}
}

func TestRedisPublisher_UnreachableRedisIsBoundedAndHarmless(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: unreachable, DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	p := NewRedisPublisherWithClient(client, zap.NewNop())

	start := time.Now()
	if err := p.Observe(context.Background(), Progress{OperationID: "op1", Total: 1, Processed: 1, Percent: 100}); err == nil {
		t.Error("Observe against unreachable redis returned nil error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Observe took %v, want it bounded by the publish timeout", elapsed)
	}

	c, _, _ := newCoordinator(t)
	c.publisher = p
	res, err := c.RemoveMembers(context.Background(), "org1", []string{"m1", "m2", "m3"}, owner, nil)
	if err != nil {
		t.Fatalf("RemoveMembers: %v", err)
	}
	if !reflect.DeepEqual(res.Succeeded, []string{"m1", "m3"}) || len(res.Failed) != 1 || res.Failed[0].ID != "m2" {
		t.Errorf("res = %+v, want [m1 m3] succeeded and m2 failed", res)
	}
}

func TestNewRedisPublisher_PingFailure(t *testing.T) {
	if p, err := NewRedisPublisher(unreachable, "", 0, zap.NewNop()); err == nil {
		_ = p.Close()
		t.Fatal("NewRedisPublisher succeeded against an unreachable address")
	}
}

func TestFanout_SkipsNilAndKeepsGoingAfterErrors(t *testing.T) {
	first := ObserverFunc(func(context.Context, Progress) error { return errors.New("down") })
	second := &recordingObserver{}
	f := fanout{nil, first, second}
	if err := f.Observe(context.Background(), Progress{OperationID: "op1"}); err != nil {
		t.Errorf("fanout err = %v, want nil", err)
	}
	if len(second.reports) != 1 {
		t.Errorf("second observer reports = %d, want 1", len(second.reports))
	}
}
