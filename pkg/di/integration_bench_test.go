package di

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/catalog"
	"github.com/goliatone/go-catalog-cache/pkg/config"
	"github.com/goliatone/go-catalog-cache/pkg/testsupport"
)

// TestConcurrentReadWrite mixes cached reads with store writes. Lists are
// generation tagged, so a read after the last write always sees it.
func TestConcurrentReadWrite(t *testing.T) {
	c := newTestContainer(t, testConfig(t))
	ctx := context.Background()
	seed := testsupport.SeedCatalog(t, c.Store())
	reads := c.QueryCache()

	const (
		readers = 8
		writes  = 20
	)

	var wg sync.WaitGroup
	errCh := make(chan error, readers*writes)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			a := &catalog.Artist{ID: seed.ArtistID, StageName: fmt.Sprintf("Name %d", i), GenreID: catalog.StringPtr(seed.GenreID), IsActive: true}
			if err := c.Store().UpdateArtist(ctx, a); err != nil {
				errCh <- fmt.Errorf("update %d: %w", i, err)
			}
		}
	}()

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				if _, err := reads.Artist(ctx, seed.ArtistID); err != nil {
					errCh <- err
				}
				if _, err := reads.ArtistList(ctx, catalog.Query{Page: 1}); err != nil {
					errCh <- err
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent access failed: %v", err)
	}

	want := fmt.Sprintf("Name %d", writes-1)
	list, err := reads.ArtistList(ctx, catalog.Query{Page: 1})
	if err != nil {
		t.Fatalf("ArtistList: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].StageName != want {
		t.Errorf("Expected list to show %q, got %+v", want, list.Items)
	}
}

func TestWarmFillsHotLists(t *testing.T) {
	c := newTestContainer(t, testConfig(t))
	ctx := context.Background()
	testsupport.SeedCatalog(t, c.Store())

	if err := c.QueryCache().Warm(ctx); err != nil {
		t.Fatalf("Warm() failed: %v", err)
	}
	status := c.QueryCache().Check(ctx)
	if !status.Healthy {
		t.Errorf("Expected healthy cache after warm, got %+v", status)
	}
}

func benchContainer(b *testing.B) (*Container, testsupport.Seed) {
	b.Helper()
	cfg := config.Default()
	cfg.Store.DSN = b.TempDir() + "/bench.db"

	c, err := NewContainer(context.Background(), cfg,
		WithLogger(zerolog.Nop()),
		WithMedia(&testsupport.FakeProber{Default: 1}, &testsupport.FakeTranscoder{}),
	)
	if err != nil {
		b.Fatalf("NewContainer() failed: %v", err)
	}
	b.Cleanup(func() { _ = c.Close() })

	return c, testsupport.SeedCatalog(b, c.Store())
}

// BenchmarkCachedVsStoreRead compares a cached playlist detail read with
// the same read served by the store.
func BenchmarkCachedVsStoreRead(b *testing.B) {
	c, seed := benchContainer(b)
	ctx := context.Background()

	b.Run("Store", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := c.Store().PlaylistTracks(ctx, seed.PlaylistID); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Cached", func(b *testing.B) {
		if _, err := c.QueryCache().PlaylistDetail(ctx, seed.PlaylistID); err != nil {
			b.Fatal(err)
		}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := c.QueryCache().PlaylistDetail(ctx, seed.PlaylistID); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkConcurrentCachedReads(b *testing.B) {
	c, seed := benchContainer(b)
	ctx := context.Background()
	q := catalog.Query{Page: 1}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.QueryCache().MusicList(ctx, q); err != nil {
				b.Error(err)
				return
			}
			if _, err := c.QueryCache().Music(ctx, seed.MusicIDs[0]); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
