// Package render turns tariff service answers and failures into chat text.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/etf-team/tariffbot/internal/tariff"
)

// ErrMalformedResponse marks a 2xx answer whose body cannot be rendered.
var ErrMalformedResponse = errors.New("render: malformed response")

// SlotCount is the number of price categories shown to the user.
const SlotCount = 6

const (
	echoPrefix       = "Ответ:\n"
	categoriesHeader = "Результаты расчёта по ценовым категориям:"
	placeholder      = "в разработке"
	inapplicableMark = " ⚠️ выбранная мощность неприменима"
)

// categorySlots maps service category codes onto display slots.
var categorySlots = map[string]int{
	"FIRST":  1,
	"SECOND": 2,
	"THIRD":  3,
	"FOURTH": 4,
}

type applicability struct {
	IsApplicablePowerCapacity         *bool   `json:"is_applicable_power_capacity"`
	PowerCapacityChangeRecommendation float64 `json:"power_capacity_change_recommendation"`
}

type category struct {
	Type          string         `json:"category_type"`
	TotalCost     *float64       `json:"total_cost"`
	Applicability *applicability `json:"applicability"`
}

type casesResponse struct {
	Categories []category `json:"categories"`
}

// Echo renders the body verbatim after a fixed prefix.
func Echo(body []byte) (string, error) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	return echoPrefix + text, nil
}

// Categories renders the six category slots in fixed order.
func Categories(body []byte) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	var resp casesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Categories == nil {
		return "", fmt.Errorf("%w: categories missing", ErrMalformedResponse)
	}

	var slots [SlotCount + 1]*category
	for i := range resp.Categories {
		c := &resp.Categories[i]
		slot, ok := categorySlots[strings.ToUpper(strings.TrimSpace(c.Type))]
		if !ok {
			continue
		}
		if c.TotalCost == nil {
			return "", fmt.Errorf("%w: %s has no total_cost", ErrMalformedResponse, c.Type)
		}
		slots[slot] = c
	}

	var b strings.Builder
	b.WriteString(categoriesHeader)
	b.WriteString("\n")
	for slot := 1; slot <= SlotCount; slot++ {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(slot))
		b.WriteString(" ЦК: ")
		c := slots[slot]
		if c == nil {
			b.WriteString(placeholder)
			continue
		}
		b.WriteString(FormatThousands(*c.TotalCost))
		if inapplicable(c) {
			b.WriteString(inapplicableMark)
		}
	}

	if first := slots[1]; first != nil && inapplicable(first) {
		b.WriteString("\n\nРекомендация: для 1 ЦК снизьте максимальную мощность на ")
		b.WriteString(strconv.FormatFloat(first.Applicability.PowerCapacityChangeRecommendation, 'f', -1, 64))
		b.WriteString(" кВт.")
	}
	return b.String(), nil
}

func inapplicable(c *category) bool {
	return c.Applicability != nil &&
		c.Applicability.IsApplicablePowerCapacity != nil &&
		!*c.Applicability.IsApplicablePowerCapacity
}

// FormatThousands converts minor units into thousands rounded to an integer:
// 120000 becomes "120 т.р.".
func FormatThousands(cost float64) string {
	v := math.Round(cost / 1000)
	if v == 0 {
		v = 0 // normalizes -0
	}
	return strconv.FormatFloat(v, 'f', 0, 64) + " т.р."
}

// Failure maps a submission error onto the text shown to the user.
// Response bodies are never included.
func Failure(err error) string {
	var se *tariff.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("%s\nКод ошибки: %d", apology, se.Code)
	}
	var ne *tariff.NetworkError
	if errors.As(err, &ne) {
		return fmt.Sprintf("Ошибка при отправке файла: %v", ne.Err)
	}
	return apology
}

const apology = "Что-то пошло не так! :( \n" +
	"Наш администратор уже уведомлен об ошибке и мы ее обязательно изучим! \n" +
	"Попробуйте ввести данные ещё раз."

// Outcome classifies err for logs and metrics.
func Outcome(err error) string {
	var (
		se *tariff.StatusError
		ne *tariff.NetworkError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &se):
		return "status_error"
	case errors.As(err, &ne):
		return "network_error"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}
