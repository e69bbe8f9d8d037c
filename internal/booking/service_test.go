package booking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fitbook/internal/database"
	"fitbook/internal/events"
	"fitbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db      *database.DB
	service *TrainingService
	bus     *events.EventBus

	trainer  *models.Trainer
	trainer2 *models.Trainer
	gym      *models.Gym
	room     *models.Room
	room2    *models.Room
	clientA  *models.Client
	clientB  *models.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus := events.NewEventBus()
	resolver := NewConflictResolver(db, &logger)
	service := NewTrainingService(db, resolver, bus, 60, &logger)

	f := &fixture{db: db, service: service, bus: bus}

	f.trainer = &models.Trainer{Name: "Anna", Specialization: "crossfit"}
	require.NoError(t, db.CreateTrainer(ctx, f.trainer))
	f.trainer2 = &models.Trainer{Name: "Ivan", Specialization: "yoga"}
	require.NoError(t, db.CreateTrainer(ctx, f.trainer2))

	f.gym = &models.Gym{Name: "Downtown", Address: models.Address{Street: "Main", BuildingNumber: "1", City: "Warsaw"}}
	require.NoError(t, db.CreateGym(ctx, f.gym, false))

	f.room = &models.Room{GymID: f.gym.ID, Capacity: 10}
	require.NoError(t, db.CreateRoom(ctx, f.room))
	f.room2 = &models.Room{GymID: f.gym.ID, Capacity: 6}
	require.NoError(t, db.CreateRoom(ctx, f.room2))

	f.clientA = &models.Client{Name: "Piotr"}
	require.NoError(t, db.CreateClient(ctx, f.clientA))
	f.clientB = &models.Client{Name: "Marta"}
	require.NoError(t, db.CreateClient(ctx, f.clientB))

	return f
}

func (f *fixture) createTraining(t *testing.T, trainerID, roomID int64, clientIDs ...int64) *models.Training {
	t.Helper()
	training := &models.Training{
		TrainerID: trainerID,
		RoomID:    roomID,
		Price:     100,
		Type:      models.TypeCardio,
		ClientIDs: clientIDs,
	}
	require.NoError(t, f.service.Create(context.Background(), training))
	return training
}

func window(day int, start, end string) *models.Window {
	return &models.Window{DayOfWeek: day, StartTime: start, EndTime: end}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.service.Create(ctx, &models.Training{
		TrainerID: f.trainer.ID, RoomID: f.room.ID, Type: "swimming",
	})
	assert.ErrorIs(t, err, ErrInvalidType)

	err = f.service.Create(ctx, &models.Training{
		TrainerID: f.trainer.ID, RoomID: f.room.ID, Type: models.TypeYoga,
		ClientIDs: []int64{f.clientA.ID, f.clientA.ID},
	})
	assert.ErrorIs(t, err, ErrDuplicateClient)

	err = f.service.Create(ctx, &models.Training{
		TrainerID: 9999, RoomID: f.room.ID, Type: models.TypeYoga,
	})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestAttachWindow_TrainerConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, first.ID, window(1, "10:00", "11:00")))

	// same trainer, different room, overlapping slot
	second := f.createTraining(t, f.trainer.ID, f.room2.ID, f.clientB.ID)
	err := f.service.AttachWindow(ctx, second.ID, window(1, "10:30", "11:30"))
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.OwnerTrainer, conflict.Class)
	assert.Equal(t, "trainer has a conflict", conflict.Error())

	// the rejected training keeps no window
	w, err := f.db.WindowForTraining(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestAttachWindow_BackToBackAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, first.ID, window(1, "10:00", "11:00")))

	second := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	assert.NoError(t, f.service.AttachWindow(ctx, second.ID, window(1, "11:00", "12:00")))
}

func TestAttachWindow_RoomConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, first.ID, window(2, "18:00", "19:00")))

	// different trainer and client, same gym schedule
	second := f.createTraining(t, f.trainer2.ID, f.room2.ID, f.clientB.ID)
	err := f.service.AttachWindow(ctx, second.ID, window(2, "18:30", "19:30"))
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.OwnerGym, conflict.Class)
	assert.Equal(t, "room is occupied", conflict.Error())
}

func TestAttachWindow_ClientConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// gym without its own schedule so only the shared client can collide
	bareGym := &models.Gym{Name: "Annex"}
	require.NoError(t, f.db.CreateGym(ctx, bareGym, true))
	bareRoom := &models.Room{GymID: bareGym.ID, Capacity: 4}
	require.NoError(t, f.db.CreateRoom(ctx, bareRoom))

	first := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, first.ID, window(3, "09:00", "10:00")))

	second := f.createTraining(t, f.trainer2.ID, bareRoom.ID, f.clientA.ID)
	err := f.service.AttachWindow(ctx, second.ID, window(3, "09:30", "10:30"))
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.OwnerClient, conflict.Class)
	assert.Equal(t, f.clientA.ID, conflict.OwnerID)
}

func TestAttachWindow_MoveDoesNotConflictWithItself(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(1, "10:00", "11:00")))

	// shifting the same training by 30 minutes overlaps the old slot
	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(1, "10:30", "11:30")))

	w, err := f.db.WindowForTraining(ctx, training.ID)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "10:30", w.StartTime)
}

func TestAttachWindow_InvalidTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	training := f.createTraining(t, f.trainer.ID, f.room.ID)

	assert.ErrorIs(t, f.service.AttachWindow(ctx, training.ID, window(1, "11:00", "10:00")), ErrInvalidTime)
	assert.ErrorIs(t, f.service.AttachWindow(ctx, training.ID, window(7, "10:00", "11:00")), ErrInvalidTime)
	assert.ErrorIs(t, f.service.AttachWindow(ctx, training.ID, window(1, "10am", "11am")), ErrInvalidTime)
}

func TestCancel_NoticeWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(1, "10:00", "11:00")))

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	// 61 минута до начала: успевает
	f.service.now = func() time.Time { return day.Add(8*time.Hour + 59*time.Minute) }
	require.NoError(t, f.service.Cancel(ctx, training.ID, &f.clientA.ID))

	got, err := f.db.GetTraining(ctx, training.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestCancel_TooLate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(1, "10:00", "11:00")))

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	// 59 минут до начала: поздно
	f.service.now = func() time.Time { return day.Add(9*time.Hour + 1*time.Minute) }
	err := f.service.Cancel(ctx, training.ID, &f.clientA.ID)
	assert.ErrorIs(t, err, ErrLateCancellation)

	got, err := f.db.GetTraining(ctx, training.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlanned, got.Status)
}

func TestCancel_TooLateWithoutClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(1, "10:00", "11:00")))

	// отмена со стороны тренера тоже попадает под дедлайн
	f.service.now = func() time.Time {
		return time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	}
	err := f.service.Cancel(ctx, training.ID, nil)
	assert.ErrorIs(t, err, ErrLateCancellation)
}

func TestCancel_ExactNoticeBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(1, "10:00", "11:00")))

	// exactly 60 minutes still qualifies
	f.service.now = func() time.Time {
		return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	}
	assert.NoError(t, f.service.Cancel(ctx, training.ID, &f.clientA.ID))
}

func TestCancel_DoubleCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(1, "10:00", "11:00")))

	f.service.now = func() time.Time {
		return time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	}
	require.NoError(t, f.service.Cancel(ctx, training.ID, nil))

	err := f.service.Cancel(ctx, training.ID, nil)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCancel_NoWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	err := f.service.Cancel(ctx, training.ID, nil)
	assert.ErrorIs(t, err, ErrNoWindowAssigned)
}

func TestCancel_NonParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	err := f.service.Cancel(ctx, training.ID, &f.clientB.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestCancel_FreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, first.ID, window(1, "10:00", "11:00")))

	f.service.now = func() time.Time {
		return time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	}
	require.NoError(t, f.service.Cancel(ctx, first.ID, nil))

	// the slot is free for a new training with the same participants
	second := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	assert.NoError(t, f.service.AttachWindow(ctx, second.ID, window(1, "10:00", "11:00")))
}

func TestUpdate_ConflictRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// clientB is busy elsewhere on Monday morning
	busy := f.createTraining(t, f.trainer2.ID, f.room2.ID, f.clientB.ID)
	require.NoError(t, f.service.AttachWindow(ctx, busy.ID, window(1, "10:00", "11:00")))

	bareGym := &models.Gym{Name: "Annex"}
	require.NoError(t, f.db.CreateGym(ctx, bareGym, true))
	bareRoom := &models.Room{GymID: bareGym.ID, Capacity: 4}
	require.NoError(t, f.db.CreateRoom(ctx, bareRoom))

	solo := f.createTraining(t, f.trainer.ID, bareRoom.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, solo.ID, window(1, "10:00", "11:00")))

	// adding the busy client must be rejected and leave the training untouched
	updated := *solo
	updated.ClientIDs = []int64{f.clientA.ID, f.clientB.ID}
	err := f.service.Update(ctx, &updated)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	got, err := f.db.GetTraining(ctx, solo.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.clientA.ID}, got.ClientIDs)

	w, err := f.db.WindowForTraining(ctx, solo.ID)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.ElementsMatch(t, []int64{f.trainer.ScheduleID, f.clientA.ScheduleID}, w.ScheduleIDs)
}

func TestUpdate_ReassignsMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(4, "12:00", "13:00")))

	updated := *training
	updated.ClientIDs = []int64{f.clientB.ID}
	updated.Price = 150
	require.NoError(t, f.service.Update(ctx, &updated))

	got, err := f.db.GetTraining(ctx, training.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.clientB.ID}, got.ClientIDs)
	assert.Equal(t, 150.0, got.Price)

	w, err := f.db.WindowForTraining(ctx, training.ID)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Contains(t, w.ScheduleIDs, f.clientB.ScheduleID)
	assert.NotContains(t, w.ScheduleIDs, f.clientA.ScheduleID)
}

func TestDetachWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	assert.ErrorIs(t, f.service.DetachWindow(ctx, training.ID), ErrNoWindowAssigned)

	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(5, "08:00", "09:00")))
	require.NoError(t, f.service.DetachWindow(ctx, training.ID))

	// slot is free again
	other := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	assert.NoError(t, f.service.AttachWindow(ctx, other.ID, window(5, "08:00", "09:00")))
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.Complete(ctx, training.ID))

	assert.ErrorIs(t, f.service.Complete(ctx, training.ID), ErrFinalized)
	assert.ErrorIs(t, f.service.Cancel(ctx, training.ID, nil), ErrFinalized)
	assert.ErrorIs(t, f.service.AttachWindow(ctx, training.ID, window(1, "10:00", "11:00")), ErrFinalized)
}

func TestPlaceWindow_FreeCapacitySkipsConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(1, "10:00", "11:00")))

	// availability window over the whole morning coexists with the booking
	free := window(1, "08:00", "14:00")
	assert.NoError(t, f.service.PlaceWindow(ctx, free, []int64{f.trainer.ScheduleID}, nil))
}

func TestEventsPublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var got []string
	record := func(event *events.Event) error {
		got = append(got, event.Type)
		return nil
	}
	f.bus.Subscribe(events.EventTrainingCreated, record)
	f.bus.Subscribe(events.EventTrainingBooked, record)
	f.bus.Subscribe(events.EventTrainingCancelled, record)

	training := f.createTraining(t, f.trainer.ID, f.room.ID, f.clientA.ID)
	require.NoError(t, f.service.AttachWindow(ctx, training.ID, window(1, "10:00", "11:00")))
	f.service.now = func() time.Time {
		return time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	}
	require.NoError(t, f.service.Cancel(ctx, training.ID, nil))

	assert.Equal(t, []string{
		events.EventTrainingCreated,
		events.EventTrainingBooked,
		events.EventTrainingCancelled,
	}, got)
}
