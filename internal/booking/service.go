package booking

import (
	"context"
	"fmt"
	"time"

	"fitbook/internal/database"
	"fitbook/internal/events"
	"fitbook/internal/metrics"
	"fitbook/internal/models"
	"fitbook/internal/timeslot"

	"github.com/rs/zerolog"
)

// TrainingService owns the training lifecycle: create, place into a window,
// update, cancel and complete. All placements go through the conflict
// resolver inside a single transaction.
type TrainingService struct {
	db            *database.DB
	resolver      *ConflictResolver
	eventBus      *events.EventBus
	noticeMinutes int
	logger        *zerolog.Logger

	now func() time.Time
}

func NewTrainingService(db *database.DB, resolver *ConflictResolver, eventBus *events.EventBus, noticeMinutes int, logger *zerolog.Logger) *TrainingService {
	if noticeMinutes <= 0 {
		noticeMinutes = models.CancellationNoticeMinutes
	}
	return &TrainingService{
		db:            db,
		resolver:      resolver,
		eventBus:      eventBus,
		noticeMinutes: noticeMinutes,
		logger:        logger,
		now:           time.Now,
	}
}

// SetClock replaces the time source, used by tests.
func (s *TrainingService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *TrainingService) validateTraining(ctx context.Context, training *models.Training) error {
	if !models.IsTrainingType(training.Type) {
		return fmt.Errorf("%w: %s", ErrInvalidType, training.Type)
	}
	if training.Price < 0 {
		return fmt.Errorf("price must not be negative: %f", training.Price)
	}

	seen := make(map[int64]bool, len(training.ClientIDs))
	for _, clientID := range training.ClientIDs {
		if seen[clientID] {
			return fmt.Errorf("%w: %d", ErrDuplicateClient, clientID)
		}
		seen[clientID] = true
	}

	// Все участники должны существовать
	if _, err := s.db.GetTrainer(ctx, training.TrainerID); err != nil {
		return err
	}
	if _, err := s.db.GetRoom(ctx, training.RoomID); err != nil {
		return err
	}
	for _, clientID := range training.ClientIDs {
		if _, err := s.db.GetClient(ctx, clientID); err != nil {
			return err
		}
	}

	return nil
}

// Create registers a planned training without a window.
func (s *TrainingService) Create(ctx context.Context, training *models.Training) error {
	training.Status = models.StatusPlanned
	if err := s.validateTraining(ctx, training); err != nil {
		return err
	}

	if err := s.db.CreateTraining(ctx, training); err != nil {
		return err
	}

	metrics.IncTrainingCreated()
	s.publish(events.EventTrainingCreated, training)

	s.logger.Info().
		Int64("training_id", training.ID).
		Str("type", training.Type).
		Msg("training created")
	return nil
}

// AttachWindow places a planned training into a weekly slot. The slot is
// validated against the schedules of the trainer, the room's gym and every
// client; the check and the write share one transaction.
func (s *TrainingService) AttachWindow(ctx context.Context, trainingID int64, window *models.Window) error {
	training, err := s.db.GetTraining(ctx, trainingID)
	if err != nil {
		return err
	}
	if training.Status == models.StatusCancelled {
		return ErrAlreadyCancelled
	}
	if training.Status == models.StatusCompleted {
		return ErrFinalized
	}

	cand, err := s.candidate(window)
	if err != nil {
		return err
	}

	if existing, err := s.db.WindowForTraining(ctx, trainingID); err != nil {
		return err
	} else if existing != nil {
		// Перемещение: старое окно не конфликтует само с собой
		window.ID = existing.ID
		cand.ExcludeWindowID = existing.ID
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	refs, err := s.db.ResolveTouchedSchedules(ctx, tx, training.TrainerID, training.RoomID, training.ClientIDs)
	if err != nil {
		return err
	}

	if err := s.resolver.Check(ctx, tx, refs, cand); err != nil {
		return err
	}

	scheduleIDs := make([]int64, 0, len(refs))
	for _, ref := range refs {
		scheduleIDs = append(scheduleIDs, ref.ID)
	}

	if err := s.db.AssignWindow(ctx, tx, window, scheduleIDs, &trainingID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.publish(events.EventTrainingBooked, training)

	s.logger.Info().
		Int64("training_id", trainingID).
		Int64("window_id", window.ID).
		Int("day", window.DayOfWeek).
		Str("start", window.StartTime).
		Msg("training placed")
	return nil
}

// PlaceWindow puts a window onto explicit schedules. With no training bound
// the window marks free capacity and skips conflict checks.
func (s *TrainingService) PlaceWindow(ctx context.Context, window *models.Window, scheduleIDs []int64, trainingID *int64) error {
	cand, err := s.candidate(window)
	if err != nil {
		return err
	}
	if len(scheduleIDs) == 0 {
		return fmt.Errorf("%w: window needs at least one schedule", ErrInvalidTime)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if trainingID != nil {
		refs := make([]database.ScheduleRef, 0, len(scheduleIDs))
		for _, id := range scheduleIDs {
			schedule, err := s.db.GetSchedule(ctx, id)
			if err != nil {
				return err
			}
			refs = append(refs, database.ScheduleRef{ID: schedule.ID, OwnerType: schedule.OwnerType, OwnerID: schedule.OwnerID})
		}
		if err := s.resolver.Check(ctx, tx, refs, cand); err != nil {
			return err
		}
	}

	if err := s.db.AssignWindow(ctx, tx, window, scheduleIDs, trainingID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DetachWindow removes the training's slot, freeing it for everyone.
func (s *TrainingService) DetachWindow(ctx context.Context, trainingID int64) error {
	training, err := s.db.GetTraining(ctx, trainingID)
	if err != nil {
		return err
	}

	window, err := s.db.WindowForTraining(ctx, trainingID)
	if err != nil {
		return err
	}
	if window == nil {
		return ErrNoWindowAssigned
	}

	if err := s.db.DeleteWindow(ctx, nil, window.ID); err != nil {
		return err
	}

	s.publish(events.EventTrainingUpdated, training)
	return nil
}

// Cancel marks the training cancelled, which releases its window. The
// clock-of-day notice period applies to every cancellation; clientID, when
// set, additionally requires the caller to be signed up for the training.
func (s *TrainingService) Cancel(ctx context.Context, trainingID int64, clientID *int64) error {
	training, err := s.db.GetTraining(ctx, trainingID)
	if err != nil {
		return err
	}
	if training.Status == models.StatusCancelled {
		return ErrAlreadyCancelled
	}
	if training.Status == models.StatusCompleted {
		return ErrFinalized
	}

	if clientID != nil && !training.HasClient(*clientID) {
		return fmt.Errorf("%w: client %d, training %d", ErrNotParticipant, *clientID, trainingID)
	}

	window, err := s.db.WindowForTraining(ctx, trainingID)
	if err != nil {
		return err
	}
	if window == nil {
		return ErrNoWindowAssigned
	}

	// Notice compares clock times only; the weekday is not consulted.
	gap, err := timeslot.MinutesUntilClock(window.StartTime, s.now())
	if err != nil {
		return err
	}
	if gap < s.noticeMinutes {
		return ErrLateCancellation
	}

	if err := s.db.UpdateTrainingStatusTx(ctx, nil, trainingID, models.StatusCancelled); err != nil {
		return err
	}

	training.Status = models.StatusCancelled
	metrics.IncTrainingCancelled()
	s.publish(events.EventTrainingCancelled, training)

	s.logger.Info().
		Int64("training_id", trainingID).
		Msg("training cancelled")
	return nil
}

// Update replaces the training's mutable fields and client set. When a
// window is attached the whole new participant set is re-validated against
// it, and the window memberships move to the new schedules atomically.
func (s *TrainingService) Update(ctx context.Context, training *models.Training) error {
	existing, err := s.db.GetTraining(ctx, training.ID)
	if err != nil {
		return err
	}
	if existing.Status == models.StatusCancelled {
		return ErrAlreadyCancelled
	}
	if existing.Status == models.StatusCompleted {
		return ErrFinalized
	}

	training.Status = existing.Status
	if err := s.validateTraining(ctx, training); err != nil {
		return err
	}

	window, err := s.db.WindowForTraining(ctx, training.ID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if window != nil {
		cand, err := s.candidate(window)
		if err != nil {
			return err
		}
		cand.ExcludeWindowID = window.ID

		refs, err := s.db.ResolveTouchedSchedules(ctx, tx, training.TrainerID, training.RoomID, training.ClientIDs)
		if err != nil {
			return err
		}
		if err := s.resolver.Check(ctx, tx, refs, cand); err != nil {
			return err
		}

		scheduleIDs := make([]int64, 0, len(refs))
		for _, ref := range refs {
			scheduleIDs = append(scheduleIDs, ref.ID)
		}
		if err := s.db.AssignWindow(ctx, tx, window, scheduleIDs, &training.ID); err != nil {
			return err
		}
	}

	if err := s.db.UpdateTrainingTx(ctx, tx, training); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.publish(events.EventTrainingUpdated, training)
	return nil
}

// Complete marks a planned training as held.
func (s *TrainingService) Complete(ctx context.Context, trainingID int64) error {
	training, err := s.db.GetTraining(ctx, trainingID)
	if err != nil {
		return err
	}
	if training.Status == models.StatusCancelled {
		return ErrAlreadyCancelled
	}
	if training.Status == models.StatusCompleted {
		return ErrFinalized
	}

	if err := s.db.UpdateTrainingStatusTx(ctx, nil, trainingID, models.StatusCompleted); err != nil {
		return err
	}

	training.Status = models.StatusCompleted
	s.publish(events.EventTrainingCompleted, training)
	return nil
}

func (s *TrainingService) candidate(window *models.Window) (Candidate, error) {
	if window.DayOfWeek < 0 || window.DayOfWeek > 6 {
		return Candidate{}, fmt.Errorf("%w: day of week %d", ErrInvalidTime, window.DayOfWeek)
	}
	startMin, endMin, err := timeslot.ValidRange(window.StartTime, window.EndTime)
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}
	return Candidate{DayOfWeek: window.DayOfWeek, StartMin: startMin, EndMin: endMin}, nil
}

func (s *TrainingService) publish(eventType string, training *models.Training) {
	payload := events.TrainingEventPayload{
		TrainingID: training.ID,
		TrainerID:  training.TrainerID,
		RoomID:     training.RoomID,
		Status:     training.Status,
		ClientIDs:  training.ClientIDs,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
