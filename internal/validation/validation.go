// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/smm-storefront/internal/model"
)

// MaxLinkLength ограничивает длину ссылки на продвигаемый объект.
const MaxLinkLength = 2048

// IsValidLink проверяет, что ссылка является абсолютным http(s)-адресом с хостом.
func IsValidLink(link string) bool {
	link = strings.TrimSpace(link)
	if link == "" || len(link) > MaxLinkLength {
		return false
	}

	u, err := url.Parse(link)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host != "" && !strings.ContainsAny(u.Host, " \t")
}

// ValidateLink возвращает model.ErrInvalidLink для некорректной ссылки.
func ValidateLink(link string) error {
	if !IsValidLink(link) {
		return fmt.Errorf("%w: %q", model.ErrInvalidLink, link)
	}
	return nil
}

// New создаёт валидатор структур с дополнительным тегом link.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("link", func(fl validator.FieldLevel) bool {
		return IsValidLink(fl.Field().String())
	})
	return v
}

// Describe превращает ошибки валидатора в короткое сообщение для клиента.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
