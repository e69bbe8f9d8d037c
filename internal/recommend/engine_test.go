package recommend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fitbook/internal/database"
	"fitbook/internal/geo"
	"fitbook/internal/models"
	"fitbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeocoder struct {
	coords map[string]*models.Coordinates
	calls  int
	err    error
}

func (f *fakeGeocoder) Geocode(ctx context.Context, addr models.Address) (*models.Coordinates, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.coords[addr.Street], nil
}

type engineFixture struct {
	db       *database.DB
	engine   *Engine
	geocoder *fakeGeocoder
	cache    *repository.MemoryRecommendationCache

	trainer *models.Trainer
	nearGym *models.Gym
	farGym  *models.Gym
	client  *models.Client
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &engineFixture{
		db:    db,
		cache: repository.NewMemoryRecommendationCache(time.Hour),
		geocoder: &fakeGeocoder{coords: map[string]*models.Coordinates{
			"Client St": {Latitude: 52.0, Longitude: 21.0},
			"Near St":   {Latitude: 52.009, Longitude: 21.0},
			"Far St":    {Latitude: 52.45, Longitude: 21.0},
		}},
	}
	f.engine = NewEngine(db, f.cache, f.geocoder, 5*time.Minute, 10, &logger)

	f.trainer = &models.Trainer{Name: "Anna"}
	require.NoError(t, db.CreateTrainer(ctx, f.trainer))

	f.nearGym = &models.Gym{Name: "Near", Address: models.Address{Street: "Near St", City: "Warsaw"}}
	require.NoError(t, db.CreateGym(ctx, f.nearGym, false))
	f.farGym = &models.Gym{Name: "Far", Address: models.Address{Street: "Far St", City: "Warsaw"}}
	require.NoError(t, db.CreateGym(ctx, f.farGym, false))

	f.client = &models.Client{Name: "Piotr", Address: models.Address{Street: "Client St", City: "Warsaw"}}
	require.NoError(t, db.CreateClient(ctx, f.client))

	return f
}

// addTraining creates a planned training in the gym and places it into a slot.
func (f *engineFixture) addTraining(t *testing.T, gym *models.Gym, trainingType string, day int, start, end string) *models.Training {
	t.Helper()
	ctx := context.Background()

	room := &models.Room{GymID: gym.ID, Capacity: 10}
	require.NoError(t, f.db.CreateRoom(ctx, room))

	training := &models.Training{
		TrainerID: f.trainer.ID,
		RoomID:    room.ID,
		Price:     100,
		Type:      trainingType,
		Status:    models.StatusPlanned,
	}
	require.NoError(t, f.db.CreateTraining(ctx, training))

	w := &models.Window{DayOfWeek: day, StartTime: start, EndTime: end}
	require.NoError(t, f.db.AssignWindow(ctx, nil, w, []int64{f.trainer.ScheduleID, *gym.ScheduleID}, &training.ID))
	return training
}

func TestGet_DistanceOrdering(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	far := f.addTraining(t, f.farGym, models.TypeCardio, 1, "10:00", "11:00")
	near := f.addTraining(t, f.nearGym, models.TypeCardio, 2, "10:00", "11:00")

	list, err := f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	require.Len(t, list.Results, 2)

	assert.Equal(t, near.ID, list.Results[0].TrainingID)
	assert.Equal(t, far.ID, list.Results[1].TrainingID)
	assert.InDelta(t, 1.0, list.Results[0].DistanceKm, 0.05)
	assert.InDelta(t, 50.0, list.Results[1].DistanceKm, 0.2)
}

func TestGet_CacheHit(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addTraining(t, f.nearGym, models.TypeCardio, 1, "10:00", "11:00")

	_, err := f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	callsAfterFirst := f.geocoder.calls

	_, err = f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, f.geocoder.calls, "cached result must not geocode again")
}

func TestGet_StaleCacheRecomputed(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addTraining(t, f.nearGym, models.TypeCardio, 1, "10:00", "11:00")

	_, err := f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	callsAfterFirst := f.geocoder.calls

	f.engine.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	_, err = f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Greater(t, f.geocoder.calls, callsAfterFirst)
}

func TestGet_PreferenceFilterAndInvalidation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	cardio := f.addTraining(t, f.nearGym, models.TypeCardio, 1, "10:00", "11:00")
	power := f.addTraining(t, f.farGym, models.TypePowerlifting, 2, "10:00", "11:00")

	require.NoError(t, f.db.UpdateClientPreferences(ctx, f.client.ID, models.Preferences{
		TrainingTypes: []string{models.TypeCardio},
	}))

	list, err := f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	require.Len(t, list.Results, 1)
	assert.Equal(t, cardio.ID, list.Results[0].TrainingID)

	// смена предпочтений и сброс кэша дают новый список
	require.NoError(t, f.db.UpdateClientPreferences(ctx, f.client.ID, models.Preferences{
		TrainingTypes: []string{models.TypePowerlifting},
	}))
	require.NoError(t, f.engine.Invalidate(ctx, f.client.ID))

	list, err = f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	require.Len(t, list.Results, 1)
	assert.Equal(t, power.ID, list.Results[0].TrainingID)
}

func TestGet_ExcludesOwnTrainings(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	training := f.addTraining(t, f.nearGym, models.TypeCardio, 1, "10:00", "11:00")

	updated := *training
	updated.ClientIDs = []int64{f.client.ID}
	require.NoError(t, f.db.UpdateTrainingTx(ctx, nil, &updated))

	list, err := f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Empty(t, list.Results)
}

func TestGet_RespectsClientAvailability(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	fits := f.addTraining(t, f.nearGym, models.TypeCardio, 1, "10:00", "11:00")
	f.addTraining(t, f.farGym, models.TypeCardio, 1, "19:00", "20:00")

	// client is only free Monday morning
	free := &models.Window{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"}
	require.NoError(t, f.db.AssignWindow(ctx, nil, free, []int64{f.client.ScheduleID}, nil))

	list, err := f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	require.Len(t, list.Results, 1)
	assert.Equal(t, fits.ID, list.Results[0].TrainingID)
}

func TestGet_CancelledEnrollmentFreesSlot(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// the client was signed up Monday 10:00, then the training was cancelled
	old := f.addTraining(t, f.farGym, models.TypeYoga, 1, "10:00", "11:00")
	updated := *old
	updated.ClientIDs = []int64{f.client.ID}
	require.NoError(t, f.db.UpdateTrainingTx(ctx, nil, &updated))

	w, err := f.db.WindowForTraining(ctx, old.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.AssignWindow(ctx, nil, w, append(w.ScheduleIDs, f.client.ScheduleID), &old.ID))
	require.NoError(t, f.db.UpdateTrainingStatusTx(ctx, nil, old.ID, models.StatusCancelled))

	offered := f.addTraining(t, f.nearGym, models.TypeCardio, 1, "10:00", "11:00")

	// the freed slot must not block a planned training at the same time
	list, err := f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	require.Len(t, list.Results, 1)
	assert.Equal(t, offered.ID, list.Results[0].TrainingID)
}

func TestGet_UnresolvableClientAddress(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addTraining(t, f.nearGym, models.TypeCardio, 1, "10:00", "11:00")

	delete(f.geocoder.coords, "Client St")

	// пустой список без ошибки
	list, err := f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Empty(t, list.Results)
}

func TestGet_ClientWithoutLocation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	homeless := &models.Client{Name: "Marek"}
	require.NoError(t, f.db.CreateClient(ctx, homeless))

	_, err := f.engine.Get(ctx, homeless.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestGet_GeocoderDown(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.addTraining(t, f.nearGym, models.TypeCardio, 1, "10:00", "11:00")
	f.geocoder.err = geo.ErrUnavailable

	_, err := f.engine.Get(ctx, f.client.ID)
	assert.ErrorIs(t, err, geo.ErrUnavailable)
}

func TestGet_UnknownClient(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Get(context.Background(), 9999)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestGet_CapsResults(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	logger := zerolog.Nop()
	f.engine = NewEngine(f.db, f.cache, f.geocoder, 5*time.Minute, 2, &logger)

	f.addTraining(t, f.nearGym, models.TypeCardio, 1, "10:00", "11:00")
	f.addTraining(t, f.nearGym, models.TypeCardio, 2, "10:00", "11:00")
	f.addTraining(t, f.farGym, models.TypeCardio, 3, "10:00", "11:00")

	list, err := f.engine.Get(ctx, f.client.ID)
	require.NoError(t, err)
	require.Len(t, list.Results, 2)
	// nearest entries survive the cap
	assert.InDelta(t, 1.0, list.Results[0].DistanceKm, 0.05)
	assert.InDelta(t, 1.0, list.Results[1].DistanceKm, 0.05)
}

func TestHaversine(t *testing.T) {
	warsaw := models.Coordinates{Latitude: 52.2297, Longitude: 21.0122}
	krakow := models.Coordinates{Latitude: 50.0647, Longitude: 19.9450}

	d := Haversine(warsaw, krakow)
	assert.InDelta(t, 252.0, d, 2.0)

	assert.Equal(t, 0.0, Haversine(warsaw, warsaw))
	assert.Equal(t, Haversine(warsaw, krakow), Haversine(krakow, warsaw))
}
