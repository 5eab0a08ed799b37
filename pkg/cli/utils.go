// Package cli resolves command line values that reference the system
// keychain.
package cli

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/keybase/dbus"
	"github.com/keybase/go-keychain/secretservice"
)

const (
	KeychainPrefix = "keychain:"
	service        = "odi-gate"
	collection     = secretservice.DefaultCollection
)

// SecretLookup returns the secret stored under element.
type SecretLookup func(element string) (string, error)

// FillKeychainValues replaces every string field of args, including those of
// nested structs, written as keychain:<element> with the secret stored in
// the Secret Service under that element.
func FillKeychainValues[T any](args *T) error {
	k := &keychain{}
	return FillValues(args, k.lookup)
}

// FillValues is FillKeychainValues with a custom secret source.
func FillValues[T any](args *T, lookup SecretLookup) error {
	return fill(reflect.ValueOf(args).Elem(), lookup)
}

func fill(v reflect.Value, lookup SecretLookup) error {
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Struct:
			if err := fill(f, lookup); err != nil {
				return err
			}
			continue
		case reflect.String:
		default:
			continue
		}
		if !strings.HasPrefix(f.String(), KeychainPrefix) {
			continue
		}
		if !f.CanSet() {
			return fmt.Errorf("set value for field %s", v.Type().Field(i).Name)
		}
		secret, err := lookup(strings.TrimPrefix(f.String(), KeychainPrefix))
		if err != nil {
			return err
		}
		f.SetString(secret)
	}
	return nil
}

type keychain struct {
	svc     *secretservice.SecretService
	session *secretservice.Session
}

func (k *keychain) lookup(element string) (string, error) {
	if k.svc == nil {
		var err error
		k.svc, k.session, err = initSecretService()
		if err != nil {
			return "", fmt.Errorf("init secret service: %v", err)
		}
	}
	if k.session == nil {
		return "", fmt.Errorf("no session")
	}
	items, err := k.svc.SearchCollection(collection, secretservice.Attributes{
		"service": service,
		"element": element,
	})
	if err != nil {
		return "", fmt.Errorf("search keychain element: %v", err)
	}
	if len(items) < 1 {
		return "", fmt.Errorf("keychain element %s not found", element)
	}
	if len(items) > 1 {
		return "", fmt.Errorf("found more than one keychain elements for %s", element)
	}
	secretValue, err := k.svc.GetSecret(items[0], *k.session)
	if err != nil {
		return "", fmt.Errorf("get value from keychain: %v", err)
	}
	return string(secretValue), nil
}

func initSecretService() (*secretservice.SecretService, *secretservice.Session, error) {
	svc, err := secretservice.NewService()
	if err != nil {
		return nil, nil, fmt.Errorf("create keychain service: %v", err)
	}
	if err := svc.Unlock([]dbus.ObjectPath{collection}); err != nil {
		return nil, nil, fmt.Errorf("unlock keychain service: %v", err)
	}
	session, err := svc.OpenSession(secretservice.AuthenticationDHAES)
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %v", err)
	}
	return svc, session, nil
}
