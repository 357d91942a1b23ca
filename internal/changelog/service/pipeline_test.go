package service

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/mock/gomock"

	"policysync/internal/changelog/keys"
	"policysync/internal/changelog/models"
	"policysync/internal/changelog/store"
	"policysync/internal/changelog/store/file"
	"policysync/internal/changelog/validation"
)

// =============================================================================
// Full pass with real signature checks
// =============================================================================

func signJWS(key *ecdsa.PrivateKey, kid, doc string) (*models.JWSDomain, error) {
	protected := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256","kid":"` + kid + `"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(doc))
	sig, err := jwt.SigningMethodES256.Sign(protected+"."+payload, key)
	if err != nil {
		return nil, err
	}
	return &models.JWSDomain{
		Payload:   payload,
		Protected: protected,
		Signature: base64.RawURLEncoding.EncodeToString(sig),
	}, nil
}

func (s *ServiceSuite) TestRunOnce_VerifiesAndPersistsToFileStore() {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)
	validator, err := validation.New(keys.NewStatic(map[string]crypto.PublicKey{"0": &key.PublicKey}))
	s.Require().NoError(err)

	backend, err := file.New(s.T().TempDir())
	s.Require().NoError(err)
	s.Require().NoError(backend.Save(s.ctx, "media", jwsRecord(mediaEnabled)))
	changelog, err := store.New(backend)
	s.Require().NoError(err)
	svc, err := New(changelog, validator, WithLogger(discardLogger()))
	s.Require().NoError(err)
	d, err := NewDriver(svc)
	s.Require().NoError(err)

	sports, err := signJWS(key, "0", sportsEnabled)
	s.Require().NoError(err)
	forged, err := signJWS(key, "0", `{"name":"weather","enabled":true}`)
	s.Require().NoError(err)
	forged.Payload = base64.RawURLEncoding.EncodeToString([]byte(`{"name":"weather","enabled":false}`))

	s.remote.EXPECT().FetchChanges(gomock.Any(), "", models.ModeJWS).
		Return(&models.Changes{Records: []models.Record{sports, forged}, Watermark: "100"}, nil)
	s.remote.EXPECT().ListDomainNames(gomock.Any()).Return([]string{"sports", "weather"}, nil)

	s.True(d.RunOnce(s.ctx, s.remote, models.ModeJWS))

	names, err := backend.ListNames(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"sports"}, names, "tampered record is dropped and media is reconciled away")

	rec, err := backend.Get(s.ctx, "sports")
	s.Require().NoError(err)
	s.Equal(sports, rec)

	wm, err := backend.Watermark(s.ctx)
	s.Require().NoError(err)
	s.Equal("100", wm)

	last, ok := d.LastPass()
	s.Require().True(ok)
	s.Equal(1, last.Updates.Applied)
	s.Equal([]string{"media"}, last.Deletes.Deleted)
}
