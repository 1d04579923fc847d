package repository

import (
	"context"
	"hash/fnv"
	"slices"
	"sort"
	"sync"
	"time"

	appointmentserrors "appointease/internal/appointments/errors"
	"appointease/pkg/model"
)

const shardCount = 64

// occupancyShard owns the confirmed cells whose key hashes to it.
type occupancyShard struct {
	mu    sync.Mutex
	cells map[string]cell
}

type cell struct {
	id   string
	slot model.Slot
}

// memoryRepository keeps the occupancy map split across shards so writers
// to different cells never contend. Lock order is shards (ascending), then mu.
type memoryRepository struct {
	shards [shardCount]occupancyShard

	mu         sync.RWMutex
	byID       map[string]*model.Appointment
	byStrongID map[string]string
	sequences  map[int]int64 // year -> last strong id sequence
}

func NewMemoryAppointmentRepository() AppointmentRepository {
	r := &memoryRepository{
		byID:       make(map[string]*model.Appointment),
		byStrongID: make(map[string]string),
		sequences:  make(map[int]int64),
	}
	for i := range r.shards {
		r.shards[i].cells = make(map[string]cell)
	}
	return r
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

func (r *memoryRepository) shard(key string) *occupancyShard {
	return &r.shards[shardIndex(key)]
}

// lockShards locks the shards of keys in ascending order and returns the unlock.
func (r *memoryRepository) lockShards(keys ...string) func() {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, shardIndex(k))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		r.shards[i].mu.Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			r.shards[idx[j]].mu.Unlock()
		}
	}
}

func (r *memoryRepository) Reserve(ctx context.Context, appt *model.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slot := appt.Slot()
	key := slot.OccupancyKey()

	unlock := r.lockShards(key)
	defer unlock()

	sh := r.shard(key)
	if _, taken := sh.cells[key]; taken {
		return appointmentserrors.ErrSlotTaken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	year := appt.CreatedAt.Year()
	r.sequences[year]++
	appt.StrongID = model.FormatStrongID(year, r.sequences[year])
	appt.Status = model.StatusConfirmed

	stored := *appt
	r.byID[appt.ID] = &stored
	r.byStrongID[appt.StrongID] = appt.ID
	sh.cells[key] = cell{id: appt.ID, slot: slot}
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appt, ok := r.byID[id]
	if !ok {
		return nil, appointmentserrors.ErrNotFound
	}
	out := *appt
	return &out, nil
}

func (r *memoryRepository) FindByStrongID(ctx context.Context, strongID string) (*model.Appointment, error) {
	r.mu.RLock()
	id, ok := r.byStrongID[strongID]
	r.mu.RUnlock()
	if !ok {
		return nil, appointmentserrors.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) ([]*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*model.Appointment{}
	for _, appt := range r.byID {
		if appt.Customer.Email == email {
			cp := *appt
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].StrongID > out[j].StrongID
	})
	return out, nil
}

// lockAppointment locks the shard of the appointment's current cell plus
// extra, retrying if the appointment moves before the locks are held.
func (r *memoryRepository) lockAppointment(ctx context.Context, id string, extra ...string) (func(), *model.Appointment, error) {
	for {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		key := current.Slot().OccupancyKey()
		unlock := r.lockShards(append([]string{key}, extra...)...)

		r.mu.RLock()
		appt := r.byID[id]
		same := appt.Slot().OccupancyKey() == key
		r.mu.RUnlock()
		if same {
			return unlock, appt, nil
		}
		unlock()
	}
}

func (r *memoryRepository) Cancel(ctx context.Context, id string, at time.Time) (*model.Appointment, bool, error) {
	unlock, appt, err := r.lockAppointment(ctx, id)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if appt.Status == model.StatusCancelled {
		out := *appt
		return &out, true, nil
	}

	key := appt.Slot().OccupancyKey()
	sh := r.shard(key)
	if c, ok := sh.cells[key]; ok && c.id == id {
		delete(sh.cells, key)
	}
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &at
	appt.UpdatedAt = &at

	out := *appt
	return &out, false, nil
}

func (r *memoryRepository) Move(ctx context.Context, id string, slot model.Slot, startsAt, at time.Time) (*model.Appointment, error) {
	newKey := slot.OccupancyKey()
	unlock, appt, err := r.lockAppointment(ctx, id, newKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if appt.Status != model.StatusConfirmed {
		return nil, appointmentserrors.ErrCancelled
	}

	oldKey := appt.Slot().OccupancyKey()
	newShard := r.shard(newKey)
	if c, taken := newShard.cells[newKey]; taken && c.id != id {
		return nil, appointmentserrors.ErrSlotTaken
	}

	if slot.ServiceID == 0 {
		slot.ServiceID = appt.ServiceID
	}
	newShard.cells[newKey] = cell{id: id, slot: slot}
	if oldKey != newKey {
		delete(r.shard(oldKey).cells, oldKey)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	appt.EmployeeID = slot.EmployeeID
	appt.Date = slot.Date
	appt.Time = slot.Time
	appt.ServiceID = slot.ServiceID
	appt.StartsAt = startsAt
	appt.UpdatedAt = &at

	out := *appt
	return &out, nil
}

func (r *memoryRepository) IsOccupied(_ context.Context, slot model.Slot) (bool, error) {
	key := slot.OccupancyKey()
	sh := r.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, taken := sh.cells[key]
	return taken, nil
}

// scan visits every confirmed cell. Shards are locked one at a time, so the
// view is per-shard consistent only.
func (r *memoryRepository) scan(fn func(c cell)) {
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for _, c := range sh.cells {
			fn(c)
		}
		sh.mu.Unlock()
	}
}

func (r *memoryRepository) OccupiedTimes(_ context.Context, employeeID int64, date string) ([]string, error) {
	times := []string{}
	r.scan(func(c cell) {
		if c.slot.EmployeeID == employeeID && c.slot.Date == date {
			times = append(times, c.slot.Time)
		}
	})
	sort.Strings(times)
	return times, nil
}

func (r *memoryRepository) OccupiedBetween(_ context.Context, employeeID int64, fromDate, toDate string) (map[string]bool, error) {
	out := make(map[string]bool)
	r.scan(func(c cell) {
		if c.slot.EmployeeID == employeeID && c.slot.Date >= fromDate && c.slot.Date <= toDate {
			out[c.slot.OccupancyKey()] = true
		}
	})
	return out, nil
}
