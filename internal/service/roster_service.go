package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/observability/metrics"
)

// ParseDuration parses roster duration tokens of the form "<N>d" or
// "<N>h" with a positive integer N.
func ParseDuration(token string) (time.Duration, error) {
	if len(token) < 2 {
		return 0, fmt.Errorf("%w: invalid duration %q, expected <N>d or <N>h", domain.ErrInvalidInput, token)
	}
	n, err := strconv.Atoi(token[:len(token)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid duration %q, expected <N>d or <N>h", domain.ErrInvalidInput, token)
	}
	switch token[len(token)-1] {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: invalid duration %q, expected <N>d or <N>h", domain.ErrInvalidInput, token)
	}
}

// AddOutcome is the result of a successful roster add
type AddOutcome struct {
	Player   *domain.Player  `json:"player"`
	Identity domain.Identity `json:"identity"`
	Message  string          `json:"message"`
}

// BulkItem reports one element of a bulk roster operation
type BulkItem struct {
	UID     string `json:"uid"`
	Message string `json:"message"`
}

// RosterService mirrors friend relationships between bots and players.
// A player record exists locally only while the external account service
// has confirmed the relationship; every mutation goes through the
// collaborator first and persists only on a confirmed success.
type RosterService struct {
	bots    domain.BotRepository
	players domain.PlayerRepository
	linker  domain.AccountLinker
	logger  *slog.Logger
}

// NewRosterService creates a new roster service
func NewRosterService(
	bots domain.BotRepository,
	players domain.PlayerRepository,
	linker domain.AccountLinker,
	logger *slog.Logger,
) *RosterService {
	if logger == nil {
		logger = slog.Default()
	}

	return &RosterService{
		bots:    bots,
		players: players,
		linker:  linker,
		logger:  logger,
	}
}

// authorize loads a bot and checks the actor may act on its roster
func (s *RosterService) authorize(actor Actor, botID int64) (*domain.Bot, error) {
	bot, err := s.bots.GetByID(botID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && bot.TenantID != actor.TenantID {
		return nil, fmt.Errorf("%w: bot belongs to another tenant", domain.ErrUnauthorized)
	}
	return bot, nil
}

// relationshipGone reports whether a collaborator failure message means
// the relationship does not exist upstream. Removing something that is
// already absent counts as success.
func relationshipGone(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "not found") ||
		strings.Contains(m, "does not exist") ||
		strings.Contains(m, "not in friend")
}

// lookupIdentity resolves display attributes best-effort, degrading to the
// unknown placeholder on failure.
func (s *RosterService) lookupIdentity(ctx context.Context, targetUID string) domain.Identity {
	identity, err := s.linker.ResolveIdentity(ctx, targetUID)
	if err != nil {
		s.logger.Warn("identity lookup failed",
			slog.String("target", targetUID),
			slog.String("error", err.Error()),
		)
		return domain.UnknownIdentity()
	}
	return identity
}

// Add asks the account service to add targetUID as a friend of the bot
// and records the player locally only if the service confirms.
func (s *RosterService) Add(ctx context.Context, actor Actor, botID int64, targetUID, durationToken string) (*AddOutcome, error) {
	bot, err := s.authorize(actor, botID)
	if err != nil {
		return nil, err
	}

	d, err := ParseDuration(durationToken)
	if err != nil {
		return nil, err
	}

	token, err := s.linker.Authenticate(ctx, bot.UID, bot.Credential)
	if err != nil {
		metrics.ObserveRosterOperation("add", "failure")
		return nil, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}

	outcome, err := s.addOne(ctx, bot, token, targetUID, durationToken, d)
	if err != nil {
		metrics.ObserveRosterOperation("add", "failure")
		return outcome, err
	}
	metrics.ObserveRosterOperation("add", "success")
	return outcome, nil
}

// addOne runs the establish-then-persist step for one target. The caller
// has already authenticated the bot.
func (s *RosterService) addOne(ctx context.Context, bot *domain.Bot, token, targetUID, durationToken string, d time.Duration) (*AddOutcome, error) {
	if targetUID == "" {
		return nil, fmt.Errorf("%w: target uid is required", domain.ErrInvalidInput)
	}

	ok, message, err := s.linker.EstablishRelationship(ctx, token, targetUID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}
	if !ok {
		// The refusal still reports whatever display attributes the
		// account service can resolve for the target.
		identity := s.lookupIdentity(ctx, targetUID)
		return &AddOutcome{Identity: identity, Message: message},
			fmt.Errorf("%w: %s", domain.ErrCollaborator, message)
	}

	identity := s.lookupIdentity(ctx, targetUID)

	now := time.Now()
	player := &domain.Player{
		BotUID:    bot.UID,
		BotID:     bot.ID,
		UID:       targetUID,
		Name:      identity.Name,
		Region:    identity.Region,
		Level:     identity.Level,
		AddedAt:   now,
		ExpiresAt: now.Add(d),
		Duration:  durationToken,
		Status:    domain.PlayerStatusAdded,
	}
	if err := s.players.Create(player); err != nil {
		// The friend exists upstream but we lost the record. Surface the
		// storage error; the next add attempt reconverges.
		return nil, err
	}

	s.logger.Info("player added",
		slog.Int64("bot_id", bot.ID),
		slog.String("target", targetUID),
		slog.Time("expires_at", player.ExpiresAt),
	)
	return &AddOutcome{Player: player, Identity: identity, Message: message}, nil
}

// Remove asks the account service to drop targetUID from the bot's
// friends and deletes the local record on success. A target the service
// no longer knows counts as removed.
func (s *RosterService) Remove(ctx context.Context, actor Actor, botID int64, targetUID string) (string, error) {
	bot, err := s.authorize(actor, botID)
	if err != nil {
		return "", err
	}

	token, err := s.linker.Authenticate(ctx, bot.UID, bot.Credential)
	if err != nil {
		metrics.ObserveRosterOperation("remove", "failure")
		return "", fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}

	message, err := s.removeOne(ctx, bot, token, targetUID)
	if err != nil {
		metrics.ObserveRosterOperation("remove", "failure")
		return "", err
	}
	metrics.ObserveRosterOperation("remove", "success")
	return message, nil
}

// removeOne runs the dissolve-then-delete step for one target. The caller
// has already authenticated the bot.
func (s *RosterService) removeOne(ctx context.Context, bot *domain.Bot, token, targetUID string) (string, error) {
	if targetUID == "" {
		return "", fmt.Errorf("%w: target uid is required", domain.ErrInvalidInput)
	}

	ok, message, err := s.linker.DissolveRelationship(ctx, token, targetUID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}
	if !ok && !relationshipGone(message) {
		return "", fmt.Errorf("%w: %s", domain.ErrCollaborator, message)
	}

	if player, err := s.players.GetByBotAndUID(bot.UID, targetUID); err == nil {
		if err := s.players.Delete(player.ID); err != nil {
			return "", err
		}
	}

	if !ok {
		message = "player was already absent"
	}
	s.logger.Info("player removed",
		slog.Int64("bot_id", bot.ID),
		slog.String("target", targetUID),
	)
	return message, nil
}

// AddMany adds several targets in one pass. Each element succeeds or
// fails on its own; one bad target never aborts the rest.
func (s *RosterService) AddMany(ctx context.Context, actor Actor, botID int64, targetUIDs []string, durationToken string) (completed, failed []BulkItem, err error) {
	bot, err := s.authorize(actor, botID)
	if err != nil {
		return nil, nil, err
	}

	d, err := ParseDuration(durationToken)
	if err != nil {
		return nil, nil, err
	}

	token, err := s.linker.Authenticate(ctx, bot.UID, bot.Credential)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}

	for _, uid := range targetUIDs {
		outcome, addErr := s.addOne(ctx, bot, token, uid, durationToken, d)
		if addErr != nil {
			failed = append(failed, BulkItem{UID: uid, Message: addErr.Error()})
			metrics.ObserveRosterOperation("add", "failure")
			continue
		}
		completed = append(completed, BulkItem{UID: uid, Message: outcome.Message})
		metrics.ObserveRosterOperation("add", "success")
	}
	return completed, failed, nil
}

// RemoveMany removes several targets in one pass, independently per
// element like AddMany.
func (s *RosterService) RemoveMany(ctx context.Context, actor Actor, botID int64, targetUIDs []string) (completed, failed []BulkItem, err error) {
	bot, err := s.authorize(actor, botID)
	if err != nil {
		return nil, nil, err
	}

	token, err := s.linker.Authenticate(ctx, bot.UID, bot.Credential)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}

	for _, uid := range targetUIDs {
		message, remErr := s.removeOne(ctx, bot, token, uid)
		if remErr != nil {
			failed = append(failed, BulkItem{UID: uid, Message: remErr.Error()})
			metrics.ObserveRosterOperation("remove", "failure")
			continue
		}
		completed = append(completed, BulkItem{UID: uid, Message: message})
		metrics.ObserveRosterOperation("remove", "success")
	}
	return completed, failed, nil
}

// List returns the bot's locally recorded roster
func (s *RosterService) List(actor Actor, botID int64) ([]*domain.Player, error) {
	bot, err := s.authorize(actor, botID)
	if err != nil {
		return nil, err
	}
	return s.players.ListByBotUID(bot.UID)
}

// Check reports whether targetUID is on the bot's local roster
func (s *RosterService) Check(actor Actor, botID int64, targetUID string) (*domain.Player, bool, error) {
	bot, err := s.authorize(actor, botID)
	if err != nil {
		return nil, false, err
	}
	player, err := s.players.GetByBotAndUID(bot.UID, targetUID)
	if err != nil {
		return nil, false, nil
	}
	return player, true, nil
}

// Info resolves a player's public identity through the account service
func (s *RosterService) Info(ctx context.Context, targetUID string) (domain.Identity, error) {
	if targetUID == "" {
		return domain.UnknownIdentity(), fmt.Errorf("%w: target uid is required", domain.ErrInvalidInput)
	}
	identity, err := s.linker.ResolveIdentity(ctx, targetUID)
	if err != nil {
		return domain.UnknownIdentity(), nil
	}
	return identity, nil
}
