package referral

import (
	"context"
	"time"

	"github.com/carelink/referral-core/internal/workflow"
	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/monitoring"
	"github.com/carelink/referral-core/pkg/types"
)

// Automation runs the periodic rule sweeps over stored referrals. All
// transitions it proposes still pass through the workflow choke point.
type Automation struct {
	service        *Service
	repository     Repository
	logger         *logger.Logger
	inactivityDays int
}

// NewAutomation creates a new automation sweep runner
func NewAutomation(service *Service, repo Repository, log *logger.Logger, inactivityDays int) *Automation {
	if inactivityDays <= 0 {
		inactivityDays = workflow.DefaultInactivityDays
	}
	return &Automation{
		service:        service,
		repository:     repo,
		logger:         log,
		inactivityDays: inactivityDays,
	}
}

// RunAutoTransitionSweep evaluates the auto-transition rules against every
// non-inactive referral and applies the first matching rule per referral.
// A conflict on one referral (a staff member transitioned it mid-sweep) is
// skipped, not retried; the next sweep sees the fresh state.
func (a *Automation) RunAutoTransitionSweep(ctx context.Context) (*types.SweepResult, error) {
	now := time.Now().UTC()
	result := &types.SweepResult{}

	referrals, err := a.listSweepable(ctx)
	if err != nil {
		return nil, err
	}

	for _, ref := range referrals {
		result.Checked++

		proposed := workflow.EvaluateAutoTransition(ref, now, a.inactivityDays)
		if proposed == nil {
			continue
		}

		_, err := a.service.TransitionReferral(ctx, ref.ID, proposed.TargetStatus, proposed.Reason, "automation")
		if err != nil {
			// Rule targets can be unreachable from some statuses (the
			// inactivity rule against an in-treatment referral) and other
			// writers can win the race; both are expected, not sweep errors.
			a.logger.WithFields(map[string]interface{}{
				"referral_id": ref.ID,
				"rule":        proposed.Rule,
			}).WithError(err).Debug("Auto transition skipped")
			continue
		}

		a.logger.WithFields(map[string]interface{}{
			"referral_id":   ref.ID,
			"rule":          proposed.Rule,
			"target_status": string(proposed.TargetStatus),
		}).Info("Auto transition applied")
		result.Transitioned++
	}

	monitoring.AddSweepTransitions(result.Transitioned)
	return result, nil
}

// RunSLASweep evaluates SLA targets against every non-inactive referral.
// Pure observation: nothing is mutated, violations are reported.
func (a *Automation) RunSLASweep(ctx context.Context) (*types.SLASweepResult, error) {
	now := time.Now().UTC()
	result := &types.SLASweepResult{}

	referrals, err := a.listSweepable(ctx)
	if err != nil {
		return nil, err
	}

	warnings, criticals := 0, 0
	for _, ref := range referrals {
		result.Checked++

		violation := workflow.EvaluateSLA(ref, now)
		if violation == nil {
			continue
		}

		result.Violations = append(result.Violations, *violation)
		switch violation.Severity {
		case types.SLACritical:
			criticals++
			a.logger.WithFields(map[string]interface{}{
				"referral_id":  violation.ReferralID,
				"phase":        violation.Phase,
				"target_days":  violation.TargetDays,
				"elapsed_days": violation.ElapsedDays,
			}).Error("SLA violation critical")
		default:
			warnings++
			a.logger.WithFields(map[string]interface{}{
				"referral_id":  violation.ReferralID,
				"phase":        violation.Phase,
				"target_days":  violation.TargetDays,
				"elapsed_days": violation.ElapsedDays,
			}).Warn("SLA violation")
		}
	}

	monitoring.SetOpenSLAViolations(warnings, criticals)
	return result, nil
}

// listSweepable fetches every referral not yet in the terminal client state.
func (a *Automation) listSweepable(ctx context.Context) ([]*types.Referral, error) {
	var out []*types.Referral
	for _, state := range []types.ClientState{
		types.StateProspective, types.StatePending, types.StateActive,
	} {
		refs, err := a.repository.List(ctx, &types.ReferralFilters{ClientState: state})
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
	}
	return out, nil
}
