package headless

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1}, nil, nil)
	require.Error(t, err)

	b, err := NewChromedp(Config{MaxParallel: 2}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	require.Equal(t, 2, cap(b.limiter))
	require.Equal(t, 45*time.Second, b.cfg.NavigationTimeout)
	require.Equal(t, 10*time.Second, b.cfg.WaitTimeout)
}

func TestAcquireRespectsContext(t *testing.T) {
	t.Parallel()

	b := &Browser{limiter: make(chan struct{}, 1)}
	require.NoError(t, b.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, b.acquire(ctx))

	b.release()
	require.NoError(t, b.acquire(context.Background()))
}

func TestPaginateYieldsUntilControlDisappears(t *testing.T) {
	t.Parallel()

	fp := &fakePage{clicks: 2}
	b := fakeBrowser(fp, 0)

	var snapshots []string
	for html, err := range b.Paginate(context.Background(), "https://carleton.ca/people", "button.loadMore") {
		require.NoError(t, err)
		snapshots = append(snapshots, html)
	}
	require.Equal(t, []string{"page-0", "page-1", "page-2"}, snapshots)
	require.Equal(t, 1, fp.closed)
}

func TestPaginateClosesSessionOnEarlyBreak(t *testing.T) {
	t.Parallel()

	fp := &fakePage{clicks: 10}
	b := fakeBrowser(fp, 0)

	for range b.Paginate(context.Background(), "https://carleton.ca/people", "button.loadMore") {
		break
	}
	require.Equal(t, 1, fp.closed)
}

func TestPaginateClosesSessionOnNavigateError(t *testing.T) {
	t.Parallel()

	fp := &fakePage{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	b := fakeBrowser(fp, 0)

	var errs int
	for _, err := range b.Paginate(context.Background(), "https://nowhere.invalid", "button.loadMore") {
		require.Error(t, err)
		errs++
	}
	require.Equal(t, 1, errs)
	require.Equal(t, 1, fp.closed)
}

func TestPaginateHonoursMaxPages(t *testing.T) {
	t.Parallel()

	fp := &fakePage{clicks: 10}
	b := fakeBrowser(fp, 3)

	var count int
	for _, err := range b.Paginate(context.Background(), "https://carleton.ca/people", "button.loadMore") {
		require.NoError(t, err)
		count++
	}
	require.Equal(t, 3, count)
}

func TestPaginateIsRestartable(t *testing.T) {
	t.Parallel()

	fp := &fakePage{clicks: 1}
	b := fakeBrowser(fp, 0)
	seq := b.Paginate(context.Background(), "https://carleton.ca/people", "button.loadMore")

	for range 2 {
		fp.reset(1)
		var count int
		for range seq {
			count++
		}
		require.Equal(t, 2, count)
	}
	require.Equal(t, 2, fp.closed)
}

func TestRenderClosesSession(t *testing.T) {
	t.Parallel()

	fp := &fakePage{}
	b := fakeBrowser(fp, 0)
	html, err := b.Render(context.Background(), "https://carleton.ca/x")
	require.NoError(t, err)
	require.Equal(t, "page-0", html)
	require.Equal(t, 1, fp.closed)
}

func fakeBrowser(fp *fakePage, maxPages int) *Browser {
	return &Browser{
		cfg:    withDefaults(Config{MaxPages: maxPages}),
		logger: zap.NewNop(),
		open: func(context.Context) (page, error) {
			return fp, nil
		},
	}
}

type fakePage struct {
	clicks int
	page   int
	navErr error
	closed int
}

func (f *fakePage) reset(clicks int) {
	f.clicks = clicks
	f.page = 0
}

func (f *fakePage) Navigate(string) (string, error) {
	if f.navErr != nil {
		return "", f.navErr
	}
	return fmt.Sprintf("page-%d", f.page), nil
}

func (f *fakePage) Click(string) error {
	if f.clicks == 0 {
		return ErrNoControl
	}
	f.clicks--
	f.page++
	return nil
}

func (f *fakePage) HTML() (string, error) {
	return fmt.Sprintf("page-%d", f.page), nil
}

func (f *fakePage) Close() {
	f.closed++
}
