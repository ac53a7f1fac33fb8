// Package secrets resolves credentials from the OS keychain, with env
// variables as the headless fallback.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups this app's secrets in the OS keychain.
const KeyringService = "jobharvest"

const (
	envOracleKey    = "JOBHARVEST_ORACLE_API_KEY"
	envSearchKey    = "JOBHARVEST_SEARCH_API_KEY"
	envIMAPPassword = "JOBHARVEST_IMAP_PASSWORD"
	envTelegram     = "JOBHARVEST_TELEGRAM_TOKEN"
)

func get(account, envName string) (string, error) {
	if strings.TrimSpace(account) != "" {
		if v, err := keyring.Get(KeyringService, account); err == nil && strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret not found in keychain (%s/%s) or env %s", KeyringService, account, envName)
}

func GetOracleAPIKey() (string, error) {
	return get("oracle", envOracleKey)
}

func GetSearchAPIKey() (string, error) {
	return get("search", envSearchKey)
}

func GetTelegramToken() (string, error) {
	return get("telegram", envTelegram)
}

func GetIMAPPassword(account string) (string, error) {
	return get(account, envIMAPPassword)
}

func Set(account, value string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(value) == "" {
		return errors.New("secret value is empty")
	}
	return keyring.Set(KeyringService, account, value)
}

func Delete(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}

// IMAPAccount is the keychain account name for a mailbox login.
func IMAPAccount(username, host string) string {
	return fmt.Sprintf("imap:%s@%s", username, host)
}
