package reports

import (
	"context"
	"encoding/json"

	"github.com/benbakir04-create/teachers-report/backend/internal/crypto"
	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

// SettingAuthToken holds the remote endpoint's shared secret.
const SettingAuthToken = "remote.auth_token"

// SetSetting stores a setting. Secret values are encrypted with the
// configured passphrase and need one to be set.
func (s *Service) SetSetting(ctx context.Context, key, value string, secret bool) error {
	if key == "" {
		return apperrors.New(apperrors.ErrInvalid, "setting key is required")
	}

	setting := models.Setting{Key: key, Value: value, Encrypted: secret, UpdatedAt: s.now().UnixMilli()}
	if secret {
		if s.passphrase == "" {
			return apperrors.New(apperrors.ErrInvalid, "a secrets passphrase must be configured to store "+key)
		}
		ciphertext, err := crypto.EncryptString(value, s.passphrase)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCryptoFailed, "encrypt setting", err)
		}
		setting.Value = ciphertext
	}

	payload, err := json.Marshal(setting)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode setting", err)
	}
	return s.store.Put(ctx, models.CollectionSettings, models.Record{
		ID:        key,
		Payload:   payload,
		CreatedAt: setting.UpdatedAt,
	})
}

// GetSetting returns a setting's plaintext value.
func (s *Service) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	rec, err := s.store.Get(ctx, models.CollectionSettings, key)
	if err != nil {
		return nil, err
	}
	var setting models.Setting
	if err := json.Unmarshal(rec.Payload, &setting); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "decode setting "+key, err)
	}
	if !setting.Encrypted {
		return &setting, nil
	}

	if s.passphrase == "" {
		return nil, apperrors.New(apperrors.ErrCryptoFailed, "setting "+key+" is encrypted and no passphrase is configured")
	}
	plaintext, err := crypto.DecryptString(setting.Value, s.passphrase)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "decrypt setting "+key, err)
	}
	setting.Value = plaintext
	return &setting, nil
}
