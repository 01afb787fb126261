package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"herdbook/pkg/domain"
)

// Snapshot captures a point-in-time clone of the registry.
type Snapshot struct {
	Users            map[string]User            `json:"users"`
	Animals          map[string]Animal          `json:"animals"`
	TransferRequests map[string]TransferRequest `json:"transfer_requests"`
	Alerts           []Alert                    `json:"alerts"`
	ButcheryRecords  []ButcheryRecord           `json:"butchery_records"`
	Quarantine       []QuarantinedAnimal        `json:"quarantine"`
}

// Bucket names used by every durable backend, one JSON payload per bucket.
const (
	BucketUsers            = "users"
	BucketAnimals          = "animals"
	BucketTransferRequests = "transfer_requests"
	BucketAlerts           = "alerts"
	BucketButcheryRecords  = "butchery_records"
	BucketQuarantine       = "quarantine"
)

// Buckets lists the bucket names in persistence order.
var Buckets = []string{BucketUsers, BucketAnimals, BucketTransferRequests, BucketAlerts, BucketButcheryRecords, BucketQuarantine}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Users:            make(map[string]User, len(state.users)),
		Animals:          make(map[string]Animal, len(state.animals)),
		TransferRequests: make(map[string]TransferRequest, len(state.transfers)),
		Alerts:           append([]Alert{}, state.alerts...),
		ButcheryRecords:  append([]ButcheryRecord{}, state.butchery...),
		Quarantine:       append([]QuarantinedAnimal{}, cloneQuarantine(state.quarantine)...),
	}
	for k, v := range state.users {
		s.Users[k] = v
	}
	for k, v := range state.animals {
		s.Animals[k] = v.Clone()
	}
	for k, v := range state.transfers {
		s.TransferRequests[k] = v.Clone()
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Users {
		state.users[k] = v
	}
	for k, v := range s.Animals {
		state.animals[k] = v.Clone()
	}
	for k, v := range s.TransferRequests {
		state.transfers[k] = v.Clone()
	}
	state.alerts = append([]Alert(nil), s.Alerts...)
	state.butchery = append([]ButcheryRecord(nil), s.ButcheryRecords...)
	state.quarantine = cloneQuarantine(s.Quarantine)
	return state
}

// migrateSnapshot fills missing buckets and normalizes records written by
// older clients: ids taken from map keys, nil slices, missing statuses.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Users == nil {
		snapshot.Users = map[string]User{}
	}
	if snapshot.Animals == nil {
		snapshot.Animals = map[string]Animal{}
	}
	if snapshot.TransferRequests == nil {
		snapshot.TransferRequests = map[string]TransferRequest{}
	}
	for id, u := range snapshot.Users {
		if u.ID == "" {
			u.ID = id
			snapshot.Users[id] = u
		}
	}
	for id, a := range snapshot.Animals {
		if a.ID == "" {
			a.ID = id
		}
		if a.Photos == nil {
			a.Photos = []string{}
		}
		if a.TransferHistory == nil {
			a.TransferHistory = []domain.TransferRecord{}
		}
		if a.Status == "" {
			a.Status = domain.StatusActive
		}
		snapshot.Animals[id] = a
	}
	for id, r := range snapshot.TransferRequests {
		if r.ID == "" {
			r.ID = id
			snapshot.TransferRequests[id] = r
		}
	}
	return snapshot
}

// EncodeBuckets serializes a snapshot into one JSON payload per bucket.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	values := map[string]any{
		BucketUsers:            snapshot.Users,
		BucketAnimals:          snapshot.Animals,
		BucketTransferRequests: snapshot.TransferRequests,
		BucketAlerts:           snapshot.Alerts,
		BucketButcheryRecords:  snapshot.ButcheryRecords,
		BucketQuarantine:       snapshot.Quarantine,
	}
	out := make(map[string][]byte, len(values))
	for _, bucket := range Buckets {
		data, err := json.Marshal(values[bucket])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// BucketError describes a bucket payload that could not be decoded and was
// replaced by its empty fallback.
type BucketError struct {
	Bucket string
	Err    error
}

func (e BucketError) Error() string {
	return fmt.Sprintf("decode bucket %s: %v", e.Bucket, e.Err)
}

func (e BucketError) Unwrap() error { return e.Err }

// DecodeBuckets rebuilds a snapshot from raw bucket payloads. Missing buckets
// are empty; corrupt buckets fall back to empty and are reported in the
// returned slice so callers can log them without failing the load. Keyed
// buckets accept either an object keyed by id or a plain JSON array.
func DecodeBuckets(raw map[string][]byte) (Snapshot, []BucketError) {
	var (
		snapshot Snapshot
		problems []BucketError
	)
	report := func(bucket string, err error) {
		problems = append(problems, BucketError{Bucket: bucket, Err: err})
	}

	if payload, ok := raw[BucketUsers]; ok {
		users, err := decodeKeyed(payload, func(u User) string { return u.ID })
		if err != nil {
			report(BucketUsers, err)
		}
		snapshot.Users = users
	}
	if payload, ok := raw[BucketAnimals]; ok {
		animals, err := decodeKeyed(payload, func(a Animal) string { return a.ID })
		if err != nil {
			report(BucketAnimals, err)
		}
		snapshot.Animals = animals
	}
	if payload, ok := raw[BucketTransferRequests]; ok {
		requests, err := decodeKeyed(payload, func(r TransferRequest) string { return r.ID })
		if err != nil {
			report(BucketTransferRequests, err)
		}
		snapshot.TransferRequests = requests
	}
	if payload, ok := raw[BucketAlerts]; ok {
		if err := decodeList(payload, &snapshot.Alerts); err != nil {
			report(BucketAlerts, err)
		}
	}
	if payload, ok := raw[BucketButcheryRecords]; ok {
		if err := decodeList(payload, &snapshot.ButcheryRecords); err != nil {
			report(BucketButcheryRecords, err)
		}
	}
	if payload, ok := raw[BucketQuarantine]; ok {
		if err := decodeList(payload, &snapshot.Quarantine); err != nil {
			report(BucketQuarantine, err)
		}
	}
	return migrateSnapshot(snapshot), problems
}

func decodeKeyed[T any](payload []byte, idOf func(T) string) (map[string]T, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]T{}, nil
	}
	if trimmed[0] == '[' {
		var list []T
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return map[string]T{}, err
		}
		out := make(map[string]T, len(list))
		for _, item := range list {
			id := idOf(item)
			if id == "" {
				return map[string]T{}, fmt.Errorf("record without id")
			}
			out[id] = item
		}
		return out, nil
	}
	var keyed map[string]T
	if err := json.Unmarshal(trimmed, &keyed); err != nil {
		return map[string]T{}, err
	}
	if keyed == nil {
		keyed = map[string]T{}
	}
	return keyed, nil
}

func decodeList[T any](payload []byte, target *[]T) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*target = nil
		return nil
	}
	var list []T
	if err := json.Unmarshal(trimmed, &list); err != nil {
		*target = nil
		return err
	}
	*target = list
	return nil
}

// DecodeSnapshotJSON decodes a whole-registry JSON document whose top-level
// keys are bucket names, with the same tolerance as DecodeBuckets.
func DecodeSnapshotJSON(data []byte) (Snapshot, []BucketError, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Snapshot{}, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	raw := make(map[string][]byte, len(top))
	for bucket, payload := range top {
		raw[bucket] = payload
	}
	snapshot, problems := DecodeBuckets(raw)
	return snapshot, problems, nil
}
