package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatbet/config"
	"chatbet/models"
	"chatbet/ratelimit"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrProviderUnavailable distinguishes "could not fetch" from "fetched an
// empty list"; flow conditions branch on the difference.
var ErrProviderUnavailable = errors.New("sports data provider unavailable")

// SportsDataService refreshes the fixture/market/outcome catalog from the
// upstream provider and serves display-ready reads to the flow layer. The
// catalog is read-mostly; staleness of seconds to minutes is fine.
type SportsDataService struct {
	db      *gorm.DB
	client  *http.Client
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

func NewSportsDataService(db *gorm.DB, limiter *ratelimit.Limiter, log zerolog.Logger) *SportsDataService {
	return &SportsDataService{
		db:      db,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: limiter,
		log:     log,
	}
}

type providerOutcome struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Label string `json:"label"`
	Odds  string `json:"odds"`
}

type providerMarket struct {
	Kind     string            `json:"kind"`
	Line     string            `json:"line"`
	Outcomes []providerOutcome `json:"outcomes"`
}

type providerFixture struct {
	ID       string           `json:"id"`
	League   string           `json:"league"`
	HomeTeam string           `json:"home_team"`
	AwayTeam string           `json:"away_team"`
	Kickoff  time.Time        `json:"kickoff"`
	Status   string           `json:"status"`
	Home     *int             `json:"home_score"`
	Away     *int             `json:"away_score"`
	Markets  []providerMarket `json:"markets"`
}

// RefreshLeague fetches the league's fixtures and upserts the catalog.
// Rate limited per provider; blocks up to the caller's context deadline.
func (s *SportsDataService) RefreshLeague(ctx context.Context, league string) error {
	if err := s.limiter.Wait(ctx, "sports-api"); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	url := fmt.Sprintf("%s/fixtures?league=%s", config.SportsAPIURL(), league)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", config.SportsAPIKey())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, body)
	}

	var fixtures []providerFixture
	if err := json.NewDecoder(resp.Body).Decode(&fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	for _, pf := range fixtures {
		if err := s.upsertFixture(pf); err != nil {
			s.log.Error().Err(err).Str("fixture", pf.ID).Msg("fixture upsert failed")
		}
	}
	s.log.Info().Str("league", league).Int("fixtures", len(fixtures)).Msg("league refreshed")
	return nil
}

func (s *SportsDataService) upsertFixture(pf providerFixture) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var fixture models.Fixture
		err := tx.Where("provider_id = ?", pf.ID).First(&fixture).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fixture = models.Fixture{ProviderID: pf.ID}
		} else if err != nil {
			return err
		}

		fixture.League = pf.League
		fixture.HomeTeam = pf.HomeTeam
		fixture.AwayTeam = pf.AwayTeam
		fixture.KickoffAt = pf.Kickoff
		if fixture.SettledAt == nil { // settlement owns the terminal state
			fixture.Status = normalizeFixtureStatus(pf.Status)
			fixture.HomeScore = pf.Home
			fixture.AwayScore = pf.Away
		}
		if err := tx.Save(&fixture).Error; err != nil {
			return err
		}

		seen := make(map[string]bool)
		for _, pm := range pf.Markets {
			line, _ := decimal.NewFromString(pm.Line)
			var market models.Market
			err := tx.Where("fixture_id = ? AND kind = ? AND line = ?", fixture.ID, pm.Kind, line).
				First(&market).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				market = models.Market{FixtureID: fixture.ID, Kind: pm.Kind, Line: line}
				if err := tx.Create(&market).Error; err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			for _, po := range pm.Outcomes {
				odds, err := decimal.NewFromString(po.Odds)
				if err != nil || !odds.GreaterThan(decimal.NewFromInt(1)) {
					s.log.Warn().Str("outcome", po.ID).Str("odds", po.Odds).
						Msg("skipping outcome with degenerate odds")
					continue
				}
				seen[po.ID] = true
				var outcome models.MarketOutcome
				err = tx.Where("provider_id = ?", po.ID).First(&outcome).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					outcome = models.MarketOutcome{
						MarketID:   market.ID,
						ProviderID: po.ID,
						Result:     models.OutcomeUnset,
					}
				} else if err != nil {
					return err
				}
				outcome.Code = po.Code
				outcome.Label = po.Label
				outcome.Odds = odds
				outcome.IsActive = true
				if err := tx.Save(&outcome).Error; err != nil {
					return err
				}
			}
		}

		// Outcomes dropped upstream are deactivated, never deleted:
		// placed legs keep their reference.
		if len(seen) > 0 {
			keep := make([]string, 0, len(seen))
			for id := range seen {
				keep = append(keep, id)
			}
			marketIDs := tx.Model(&models.Market{}).Select("id").Where("fixture_id = ?", fixture.ID)
			if err := tx.Model(&models.MarketOutcome{}).
				Where("market_id IN (?) AND provider_id NOT IN ?", marketIDs, keep).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func normalizeFixtureStatus(s string) string {
	switch s {
	case "FT", "AET", "PEN", models.FixtureFinished:
		return models.FixtureFinished
	case "LIVE", "1H", "2H", "HT":
		return models.FixtureLive
	case "CANC", models.FixtureCancelled:
		return models.FixtureCancelled
	case "PST", models.FixturePostponed:
		return models.FixturePostponed
	default:
		return models.FixtureScheduled
	}
}

// AvailableLeagues lists leagues with at least one open upcoming fixture.
func (s *SportsDataService) AvailableLeagues() ([]string, error) {
	var leagues []string
	err := s.db.Model(&models.Fixture{}).
		Where("status IN ? AND kickoff_at > ?", []string{models.FixtureScheduled, models.FixtureLive}, time.Now().Add(-2*time.Hour)).
		Distinct().
		Order("league").
		Pluck("league", &leagues).Error
	return leagues, err
}

type FixtureItem struct {
	ID       uint
	Label    string
	Kickoff  time.Time
	Outcomes []OutcomeItem
}

type OutcomeItem struct {
	ID    uint
	Label string
	Odds  decimal.Decimal
}

// UpcomingFixtures returns display-ready fixtures for one league within the
// window, with their match-winner prices attached.
func (s *SportsDataService) UpcomingFixtures(league string, window time.Duration) ([]FixtureItem, error) {
	var fixtures []models.Fixture
	err := s.db.Preload("Markets.Outcomes", "is_active = ?", true).
		Where("league = ? AND status = ? AND kickoff_at BETWEEN ? AND ?",
			league, models.FixtureScheduled, time.Now(), time.Now().Add(window)).
		Order("kickoff_at").
		Find(&fixtures).Error
	if err != nil {
		return nil, err
	}

	items := make([]FixtureItem, 0, len(fixtures))
	for _, fx := range fixtures {
		item := FixtureItem{
			ID:      fx.ID,
			Label:   fmt.Sprintf("%s vs %s", fx.HomeTeam, fx.AwayTeam),
			Kickoff: fx.KickoffAt,
		}
		for _, market := range fx.Markets {
			if market.Kind != models.MarketMatchWinner {
				continue
			}
			for _, o := range market.Outcomes {
				item.Outcomes = append(item.Outcomes, OutcomeItem{ID: o.ID, Label: o.Label, Odds: o.Odds})
			}
		}
		items = append(items, item)
	}
	return items, nil
}
