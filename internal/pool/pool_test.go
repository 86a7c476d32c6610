package pool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pairstream/internal/chain"
	"pairstream/internal/chain/chaintest"
	"pairstream/internal/model"
)

var testPair = model.MonitoredPair{
	ID:      model.PairWMATICUSDC,
	Address: common.HexToAddress("0x6e7a5fafcec6bb1e78bae2a1f0b612012bf14827").Hex(),
}

func newTestPool(t *testing.T, size int, timeout time.Duration, dialer *chaintest.Dialer) *Pool {
	t.Helper()
	p, err := New(context.Background(), testPair, Options{Size: size, AcquireTimeout: timeout}, dialer.Dial)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestNewDialsSizePlusDedicated(t *testing.T) {
	dialer := chaintest.NewDialer()
	p := newTestPool(t, 3, time.Second, dialer)

	if got := len(dialer.All()); got != 4 {
		t.Fatalf("expected 4 handles dialed, got %d", got)
	}
	if p.Size() != 3 || p.InUse() != 0 {
		t.Fatalf("size/in use mismatch: %d %d", p.Size(), p.InUse())
	}
}

func TestNewClosesPartialHandlesOnDialFailure(t *testing.T) {
	dialer := chaintest.NewDialer()
	dialer.FailAfter = 2

	if _, err := New(context.Background(), testPair, Options{Size: 4}, dialer.Dial); err == nil {
		t.Fatalf("expected dial failure")
	}
	opened := dialer.All()
	if len(opened) != 2 {
		t.Fatalf("expected 2 opened handles, got %d", len(opened))
	}
	for _, c := range opened {
		if c.Closed() != 1 {
			t.Fatalf("partial handle not closed")
		}
	}
}

func TestAcquireNeverExceedsSize(t *testing.T) {
	for _, size := range []int{1, 2, 5} {
		dialer := chaintest.NewDialer()
		p := newTestPool(t, size, time.Second, dialer)

		var (
			mu   sync.Mutex
			peak int
			wg   sync.WaitGroup
		)
		for i := 0; i < size*4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				conn, err := p.Acquire(context.Background())
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				mu.Lock()
				if n := p.InUse(); n > peak {
					peak = n
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				p.Release(conn)
			}()
		}
		wg.Wait()

		if peak > size {
			t.Fatalf("size %d: peak in use %d", size, peak)
		}
		if p.InUse() != 0 || len(p.conns) != size {
			t.Fatalf("size %d: pool not restored, in use %d idle %d", size, p.InUse(), len(p.conns))
		}
	}
}

func TestAcquireTimesOutWithPoolExhausted(t *testing.T) {
	p := newTestPool(t, 1, 20*time.Millisecond, chaintest.NewDialer())

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	start := time.Now()
	_, err = p.Acquire(context.Background())
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("acquire returned before timeout: %s", elapsed)
	}

	p.Release(held)
	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestAcquireSucceedsAfterRelease(t *testing.T) {
	p := newTestPool(t, 1, time.Second, chaintest.NewDialer())

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan chain.Contract, 1)
	go func() {
		conn, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("waiting acquire: %v", err)
		}
		done <- conn
	}()

	time.Sleep(10 * time.Millisecond)
	p.Release(held)

	select {
	case conn := <-done:
		if conn != held {
			t.Fatalf("expected the released handle")
		}
	case <-time.After(time.Second):
		t.Fatalf("waiting acquire did not complete")
	}
}

func TestFetchReleasesOnError(t *testing.T) {
	dialer := chaintest.NewDialer()
	boom := errors.New("execution reverted")
	dialer.Configure = func(c *chaintest.Contract) { c.CallErr = boom }
	p := newTestPool(t, 2, time.Second, dialer)

	if _, _, err := p.FetchReserves(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if _, err := p.FetchLPSupply(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if p.InUse() != 0 || len(p.conns) != 2 {
		t.Fatalf("handles leaked: in use %d idle %d", p.InUse(), len(p.conns))
	}
}

func TestFetchReservesAndSupply(t *testing.T) {
	p := newTestPool(t, 2, time.Second, chaintest.NewDialer())

	reserve0, reserve1, err := p.FetchReserves(context.Background())
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if reserve0.Int64() != 1_000_000 || reserve1.Int64() != 2_000_000 {
		t.Fatalf("reserves mismatch: %s %s", reserve0, reserve1)
	}
	supply, err := p.FetchLPSupply(context.Background())
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Int64() != 3_000_000 {
		t.Fatalf("supply mismatch: %s", supply)
	}
}

func TestSwapFilterUsesDedicatedHandle(t *testing.T) {
	dialer := chaintest.NewDialer()
	p := newTestPool(t, 2, time.Second, dialer)

	handles := dialer.Contracts(common.HexToAddress(testPair.Address))
	dedicated := handles[len(handles)-1]
	pair := common.HexToAddress(testPair.Address)
	removed := chaintest.SwapLog(pair, 99, common.HexToHash("0x0f"), 1, 0, 0, 1)
	removed.Removed = true
	dedicated.QueueLogs(
		chaintest.SwapLog(pair, 100, common.HexToHash("0x01"), 10, 0, 0, 20),
		removed,
		chaintest.SwapLog(pair, 100, common.HexToHash("0x02"), 0, 5, 3, 0),
	)

	filter, err := p.LatestSwapFilter(context.Background())
	if err != nil {
		t.Fatalf("swap filter: %v", err)
	}
	swaps, err := filter.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(swaps) != 2 || swaps[0].TxHash != common.HexToHash("0x01") {
		t.Fatalf("swaps mismatch: %+v", swaps)
	}
	if swaps[1].Amount0Out.Int64() != 3 {
		t.Fatalf("amount mismatch: %s", swaps[1].Amount0Out)
	}

	swaps, err = filter.Poll(context.Background())
	if err != nil || len(swaps) != 0 {
		t.Fatalf("expected empty poll, got %d %v", len(swaps), err)
	}
}

func TestSwapFilterKeepsSwapsAroundUndecodableEntry(t *testing.T) {
	dialer := chaintest.NewDialer()
	p := newTestPool(t, 1, time.Second, dialer)

	handles := dialer.Contracts(common.HexToAddress(testPair.Address))
	dedicated := handles[len(handles)-1]
	pair := common.HexToAddress(testPair.Address)
	truncated := chaintest.SwapLog(pair, 100, common.HexToHash("0x02"), 1, 0, 0, 1)
	truncated.Data = truncated.Data[:32]
	dedicated.QueueLogs(
		chaintest.SwapLog(pair, 100, common.HexToHash("0x01"), 10, 0, 0, 20),
		truncated,
		chaintest.SwapLog(pair, 100, common.HexToHash("0x03"), 0, 5, 3, 0),
	)

	filter, err := p.LatestSwapFilter(context.Background())
	if err != nil {
		t.Fatalf("swap filter: %v", err)
	}
	swaps, err := filter.Poll(context.Background())
	if err == nil {
		t.Fatalf("expected decode error for truncated entry")
	}
	if !strings.Contains(err.Error(), common.HexToHash("0x02").Hex()) {
		t.Fatalf("error does not name the bad entry: %v", err)
	}
	if len(swaps) != 2 {
		t.Fatalf("expected 2 decoded swaps, got %d", len(swaps))
	}
	if swaps[0].TxHash != common.HexToHash("0x01") || swaps[1].TxHash != common.HexToHash("0x03") {
		t.Fatalf("swaps mismatch: %+v", swaps)
	}
}

func TestCloseClosesEveryHandleOnce(t *testing.T) {
	dialer := chaintest.NewDialer()
	p, err := New(context.Background(), testPair, Options{Size: 2}, dialer.Dial)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	p.Close()
	p.Close()
	for _, c := range dialer.All() {
		if c.Closed() != 1 {
			t.Fatalf("handle closed %d times", c.Closed())
		}
	}
}

func TestNewRetriesTransientDialFailures(t *testing.T) {
	dialer := chaintest.NewDialer()
	var (
		mu       sync.Mutex
		attempts int
	)
	flaky := func(ctx context.Context, address common.Address) (chain.Contract, error) {
		mu.Lock()
		attempts++
		fail := attempts%2 == 1
		mu.Unlock()
		if fail {
			return nil, errors.New("connection reset")
		}
		return dialer.Dial(ctx, address)
	}

	p, err := New(context.Background(), testPair, Options{Size: 2, DialRetries: 1, DialBackoff: time.Millisecond}, flaky)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer p.Close()

	if attempts != 6 {
		t.Fatalf("expected 6 dial attempts, got %d", attempts)
	}
	if got := len(dialer.All()); got != 3 {
		t.Fatalf("expected 3 handles, got %d", got)
	}
}

func TestNewGivesUpAfterDialRetries(t *testing.T) {
	dialer := chaintest.NewDialer()
	dialer.FailAfter = 0

	start := time.Now()
	_, err := New(context.Background(), testPair, Options{Size: 1, DialRetries: 2, DialBackoff: 5 * time.Millisecond}, dialer.Dial)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	// two backoffs: 5ms then 10ms
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("gave up after %s, expected backoff between attempts", elapsed)
	}
}

func TestNewStopsRetryingOnCancel(t *testing.T) {
	dialer := chaintest.NewDialer()
	dialer.FailAfter = 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(ctx, testPair, Options{Size: 1, DialRetries: 5, DialBackoff: time.Hour}, dialer.Dial)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
