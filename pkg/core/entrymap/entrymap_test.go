package entrymap

import (
	"encoding/binary"
	"testing"

	"pegmargin/pkg/storage"
)

// scoreEntry keys on a big-endian rank so iteration is ascending by rank.
type scoreEntry struct {
	Rank  uint64
	Score uint64
}

func (e scoreEntry) Entry() (key, value []byte) {
	key = make([]byte, 8)
	binary.BigEndian.PutUint64(key, e.Rank)
	value = make([]byte, 8)
	binary.BigEndian.PutUint64(value, e.Score)
	return key, value
}

func scoreFromEntry(key, value []byte) scoreEntry {
	return scoreEntry{
		Rank:  binary.BigEndian.Uint64(key),
		Score: binary.BigEndian.Uint64(value),
	}
}

func newScoreMap() *Map[scoreEntry] {
	return New(storage.NewMemStore(), "sc:", scoreFromEntry)
}

func TestInsertGet(t *testing.T) {
	m := newScoreMap()
	if err := m.Insert(scoreEntry{Rank: 7, Score: 700}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, found, err := m.Get(scoreEntry{Rank: 7})
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.Score != 700 {
		t.Errorf("score = %d, want 700", got.Score)
	}

	_, found, err = m.Get(scoreEntry{Rank: 8})
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if found {
		t.Error("found entry that was never inserted")
	}
}

func TestInsertOverwrites(t *testing.T) {
	m := newScoreMap()
	m.Insert(scoreEntry{Rank: 1, Score: 10})
	m.Insert(scoreEntry{Rank: 1, Score: 20})

	got, found, err := m.Get(scoreEntry{Rank: 1})
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.Score != 20 {
		t.Errorf("score = %d, want 20 after overwrite", got.Score)
	}
}

func TestDelete(t *testing.T) {
	m := newScoreMap()
	m.Insert(scoreEntry{Rank: 3, Score: 30})

	found, err := m.Delete(scoreEntry{Rank: 3})
	if err != nil || !found {
		t.Fatalf("delete: found=%v err=%v", found, err)
	}
	found, err = m.Delete(scoreEntry{Rank: 3})
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if found {
		t.Error("second delete reported existing entry")
	}
}

func TestIterationOrder(t *testing.T) {
	m := newScoreMap()
	for _, r := range []uint64{5, 1, 9, 3} {
		if err := m.Insert(scoreEntry{Rank: r, Score: r * 10}); err != nil {
			t.Fatalf("insert %d: %v", r, err)
		}
	}

	it := m.Iter()
	defer it.Close()
	var got []uint64
	for it.Next() {
		got = append(got, it.Entry().Rank)
	}
	want := []uint64{1, 3, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("ranks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: rank %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPrefixIsolation(t *testing.T) {
	store := storage.NewMemStore()
	a := New(store, "a:", scoreFromEntry)
	b := New(store, "b:", scoreFromEntry)

	a.Insert(scoreEntry{Rank: 1, Score: 1})
	b.Insert(scoreEntry{Rank: 2, Score: 2})

	it := a.Iter()
	defer it.Close()
	var ranks []uint64
	for it.Next() {
		ranks = append(ranks, it.Entry().Rank)
	}
	if len(ranks) != 1 || ranks[0] != 1 {
		t.Errorf("map a sees ranks %v, want [1]", ranks)
	}
}
