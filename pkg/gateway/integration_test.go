// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-gateway.
//
// go-webauthn-gateway is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-webauthn-gateway/pkg/credential"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/session"
)

// TestIntegration_FullRegistrationFlow tests the complete registration
// ceremony using a virtual authenticator.
func TestIntegration_FullRegistrationFlow(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigin:      "https://example.com",
	}

	creds := credential.NewMemoryStore()
	sessions := session.NewMemoryStore()
	svc, err := NewService(ServiceParams{
		Config:      cfg,
		Sessions:    sessions,
		Credentials: creds,
	})
	require.NoError(t, err)

	rp := virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigin,
	}
	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	sess, err := sessions.Create(ctx)
	require.NoError(t, err)

	// Step 1: Begin registration
	options, err := svc.BeginRegistration(ctx, sess, "testuser")
	require.NoError(t, err)
	require.NotNil(t, options)
	require.NotNil(t, sess.Data.Registration)

	assert.Equal(t, cfg.RPID, options.Response.RelyingParty.ID)
	assert.Equal(t, "testuser", options.Response.User.Name)
	assert.NotEmpty(t, options.Response.Challenge)

	// Step 2: Create attestation response using virtual authenticator
	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestationResponse := virtualwebauthn.CreateAttestationResponse(rp, authenticator, cred, *parsedOptions)

	// Step 3: Parse the attestation response (simulating what the browser sends)
	parsedResponse, err := parseAttestationResponse(attestationResponse)
	require.NoError(t, err)

	// Step 4: Finish registration
	err = svc.FinishRegistration(ctx, sess, "testuser", "yubikey", parsedResponse)
	require.NoError(t, err)

	// Ceremony state is consumed
	assert.Nil(t, sess.Data.Registration)

	// Credential was stored under the chosen name
	infos, err := svc.Credentials(ctx, "testuser")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "yubikey", infos[0].Name)
}

// TestIntegration_FullAuthenticationFlow registers a credential and then
// authenticates with it, checking login state and redirect consumption.
func TestIntegration_FullAuthenticationFlow(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigin:      "https://example.com",
	}

	sessions := session.NewMemoryStore()
	svc, err := NewService(ServiceParams{
		Config:      cfg,
		Sessions:    sessions,
		Credentials: credential.NewMemoryStore(),
	})
	require.NoError(t, err)

	rp := virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigin,
	}
	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	sess, err := sessions.Create(ctx)
	require.NoError(t, err)

	// === REGISTRATION PHASE ===

	regOptions, err := svc.BeginRegistration(ctx, sess, "bob")
	require.NoError(t, err)

	regOptionsJSON, err := json.Marshal(regOptions.Response)
	require.NoError(t, err)
	parsedRegOptions, err := virtualwebauthn.ParseAttestationOptions(string(regOptionsJSON))
	require.NoError(t, err)

	attestationResponse := virtualwebauthn.CreateAttestationResponse(rp, authenticator, cred, *parsedRegOptions)
	parsedAttResponse, err := parseAttestationResponse(attestationResponse)
	require.NoError(t, err)

	require.NoError(t, svc.FinishRegistration(ctx, sess, "bob", "yubikey", parsedAttResponse))
	authenticator.AddCredential(cred)

	// === AUTHENTICATION PHASE ===

	// With a credential enrolled the bootstrap path must not fire.
	loginSess, err := sessions.Create(ctx)
	require.NoError(t, err)

	challenge, err := svc.BeginAuthentication(ctx, loginSess, "bob")
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.False(t, LoggedIn(loginSess))

	// Stash a redirect target before finishing.
	_, err = svc.CaptureRedirect(ctx, loginSess, "https://sub.example.com/app")
	require.NoError(t, err)

	loginOptionsJSON, err := json.Marshal(challenge.Response)
	require.NoError(t, err)
	parsedLoginOptions, err := virtualwebauthn.ParseAssertionOptions(string(loginOptionsJSON))
	require.NoError(t, err)

	assertionResponse := virtualwebauthn.CreateAssertionResponse(rp, authenticator, cred, *parsedLoginOptions)
	parsedAssertResponse, err := parseAssertionResponse(assertionResponse)
	require.NoError(t, err)

	redirect, err := svc.FinishAuthentication(ctx, loginSess, "bob", parsedAssertResponse)
	require.NoError(t, err)
	assert.Equal(t, "https://sub.example.com/app", redirect)
	assert.True(t, LoggedIn(loginSess))
	assert.Nil(t, loginSess.Data.Authentication)

	// The redirect target is single use.
	assert.Empty(t, loginSess.Data.RedirectURL)
	loaded, err := sessions.Load(ctx, loginSess.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Data.RedirectURL)

	// A second finish with the consumed state reports no pending ceremony.
	_, err = svc.FinishAuthentication(ctx, loginSess, "bob", parsedAssertResponse)
	assert.ErrorIs(t, err, ErrNoCeremony)
}

// TestIntegration_DuplicateRegistration registers the same authenticator
// credential twice and expects a conflict with no repository change.
func TestIntegration_DuplicateRegistration(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigin:      "https://example.com",
	}

	sessions := session.NewMemoryStore()
	svc, err := NewService(ServiceParams{
		Config:      cfg,
		Sessions:    sessions,
		Credentials: credential.NewMemoryStore(),
	})
	require.NoError(t, err)

	rp := virtualwebauthn.RelyingParty{
		Name:   cfg.RPDisplayName,
		ID:     cfg.RPID,
		Origin: cfg.RPOrigin,
	}
	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	register := func(sess *session.Session) error {
		options, err := svc.BeginRegistration(ctx, sess, "bob")
		require.NoError(t, err)

		optionsJSON, err := json.Marshal(options.Response)
		require.NoError(t, err)
		parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
		require.NoError(t, err)

		attestation := virtualwebauthn.CreateAttestationResponse(rp, authenticator, cred, *parsedOptions)
		parsed, err := parseAttestationResponse(attestation)
		require.NoError(t, err)

		return svc.FinishRegistration(ctx, sess, "bob", "yubikey", parsed)
	}

	sess, err := sessions.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, register(sess))

	sess2, err := sessions.Create(ctx)
	require.NoError(t, err)
	err = register(sess2)
	assert.ErrorIs(t, err, ErrDuplicateCredential)

	// Credential count unchanged.
	infos, err := svc.Credentials(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

// parseAttestationResponse parses a virtual authenticator attestation
// response into the format expected by go-webauthn.
func parseAttestationResponse(attestation string) (*protocol.ParsedCredentialCreationData, error) {
	var ccr protocol.CredentialCreationResponse
	if err := json.Unmarshal([]byte(attestation), &ccr); err != nil {
		return nil, err
	}
	return ccr.Parse()
}

// parseAssertionResponse parses a virtual authenticator assertion response
// into the format expected by go-webauthn.
func parseAssertionResponse(assertion string) (*protocol.ParsedCredentialAssertionData, error) {
	var car protocol.CredentialAssertionResponse
	if err := json.Unmarshal([]byte(assertion), &car); err != nil {
		return nil, err
	}
	return car.Parse()
}
