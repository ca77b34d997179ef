package services

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/reglet-dev/lantern/internal/application/errors"
	"github.com/reglet-dev/lantern/internal/application/ports"
	"github.com/reglet-dev/lantern/internal/domain/capabilities"
	"github.com/reglet-dev/lantern/internal/domain/extension"
)

// Security levels understood by the gatekeeper.
const (
	SecurityLevelStrict     = "strict"
	SecurityLevelStandard   = "standard"
	SecurityLevelPermissive = "permissive"
)

// CapabilityGatekeeper decides whether an extension's requested permissions
// may be installed. It is the only place install-time consent is asked for;
// at run time the manifest is the grant.
type CapabilityGatekeeper struct {
	prompter      ports.PermissionPrompter
	securityLevel string
}

// NewCapabilityGatekeeper creates a new capability gatekeeper.
func NewCapabilityGatekeeper(prompter ports.PermissionPrompter, securityLevel string) *CapabilityGatekeeper {
	return &CapabilityGatekeeper{
		prompter:      prompter,
		securityLevel: securityLevel,
	}
}

// Review applies the security policy to ext's permissions and returns the
// grant the extension will run with.
//
//   - strict: broad permissions are refused, everything else is prompted
//   - standard: every non-empty grant is prompted
//   - permissive: nothing is prompted
//
// assumeYes skips the prompt but never overrides a strict refusal.
func (g *CapabilityGatekeeper) Review(ctx context.Context, ext *extension.Extension, assumeYes bool) (capabilities.Grant, error) {
	if ext.Permissions().IsEmpty() {
		return capabilities.NewGrant(), nil
	}
	requested, err := ext.Grant()
	if err != nil {
		return nil, err
	}

	if g.securityLevel == SecurityLevelStrict {
		for _, c := range requested {
			if c.IsBroad() {
				slog.ErrorContext(ctx, "broad capability denied by security policy",
					"level", g.securityLevel,
					"extension", ext.Name(),
					"capability", c.String(),
					"risk", c.RiskDescription())
				return nil, apperrors.NewLifecycleError(apperrors.LifecycleDeclined, ext.Name(),
					fmt.Sprintf("broad capability denied by strict security policy: %s", c.String()), nil)
			}
		}
	}

	if g.securityLevel == SecurityLevelPermissive {
		for _, c := range requested {
			if c.IsBroad() {
				slog.WarnContext(ctx, "auto-granting broad capability (permissive mode)", "extension", ext.Name(), "capability", c.String())
			}
		}
		return requested, nil
	}

	if assumeYes {
		slog.WarnContext(ctx, "auto-granting requested capabilities (--yes)",
			"extension", ext.Name(),
			"risk", requested.HighestRisk().String())
		return requested, nil
	}

	if g.prompter == nil || !g.prompter.IsInteractive() {
		var cause error
		if g.prompter != nil {
			cause = g.prompter.FormatNonInteractiveError(ext.Name(), requested)
		}
		return nil, apperrors.NewLifecycleError(apperrors.LifecycleDeclined, ext.Name(),
			"permissions were not approved", cause)
	}

	ok, err := g.prompter.ConfirmPermissions(ext.Name(), requested)
	if err != nil {
		return nil, fmt.Errorf("permission prompt failed: %w", err)
	}
	if !ok {
		return nil, apperrors.NewLifecycleError(apperrors.LifecycleDeclined, ext.Name(),
			"installation cancelled by user", nil)
	}
	return requested, nil
}
