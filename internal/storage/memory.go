package storage

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryServer is an in-memory record store speaking the /add/data and
// /get/data protocol. It backs the local stub server and tests.
type MemoryServer struct {
	mu      sync.RWMutex
	records []wireRecord
	mux     *http.ServeMux
}

// NewMemoryServer creates an empty in-memory record store
func NewMemoryServer() *MemoryServer {
	s := &MemoryServer{mux: http.NewServeMux()}
	s.mux.HandleFunc(pathAdd, s.handleAdd)
	s.mux.HandleFunc(pathGet, s.handleGet)
	return s
}

func (s *MemoryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Len returns the number of stored records
func (s *MemoryServer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rec wireRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid record: "+err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := DecodeAudio(rec.SpeechBytes); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if rec.Collection == "" {
		rec.Collection = CollectionFor(rec.Description)
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *MemoryServer) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	collection := q.Get("collection")

	match, err := matcher(q.Get("user_id"), q.Get("time_from"), q.Get("time_to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	result := make([]memoryRecord, 0)
	for _, rec := range s.records {
		if collection != "" && rec.Collection != collection {
			continue
		}
		if match(rec) {
			result = append(result, memoryRecord{wireRecord: rec, Timestamp: mongoDate{rec.Timestamp.Time}})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp.Time)
	})

	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func matcher(userID, from, to string) (func(wireRecord) bool, error) {
	if userID != "" {
		id, err := strconv.ParseInt(userID, 10, 64)
		if err != nil {
			return nil, err
		}
		return func(rec wireRecord) bool { return int64(rec.UserID) == id }, nil
	}

	start, err := ParseTimestamp(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseTimestamp(to)
	if err != nil {
		return nil, err
	}
	return func(rec wireRecord) bool {
		t := rec.Timestamp.Time
		return !t.Before(start) && !t.After(end)
	}, nil
}

// memoryRecord renders the timestamp the way a document store does
type memoryRecord struct {
	wireRecord
	Timestamp mongoDate `json:"timestamp"`
}

type mongoDate struct {
	time.Time
}

func (d mongoDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"$date": d.UTC().Format(time.RFC3339Nano)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
