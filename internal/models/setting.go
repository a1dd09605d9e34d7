package models

// Setting is a key/value entry in the settings collection. Encrypted values
// hold ciphertext produced by the crypto package.
type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Encrypted bool   `json:"encrypted"`
	UpdatedAt int64  `json:"updated_at"`
}
