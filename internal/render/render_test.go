package render

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etf-team/tariffbot/internal/tariff"
)

func TestCategories_FixedSlotsAndMarkers(t *testing.T) {
	body := `{"categories":[
		{"category_type":"THIRD","total_cost":95000,"applicability":{"is_applicable_power_capacity":true,"power_capacity_change_recommendation":0}},
		{"category_type":"FIRST","total_cost":120000,"applicability":{"is_applicable_power_capacity":false,"power_capacity_change_recommendation":35.5}},
		{"category_type":"SECOND","total_cost":80000,"applicability":{"is_applicable_power_capacity":true,"power_capacity_change_recommendation":0}}
	]}`

	text, err := Categories([]byte(body))
	require.NoError(t, err)

	lines := strings.Split(text, "\n")
	require.GreaterOrEqual(t, len(lines), 8)
	assert.Equal(t, categoriesHeader, lines[0])
	assert.Equal(t, "1 ЦК: 120 т.р."+inapplicableMark, lines[2])
	assert.Equal(t, "2 ЦК: 80 т.р.", lines[3])
	assert.Equal(t, "3 ЦК: 95 т.р.", lines[4])
	assert.Equal(t, "4 ЦК: в разработке", lines[5])
	assert.Equal(t, "5 ЦК: в разработке", lines[6])
	assert.Equal(t, "6 ЦК: в разработке", lines[7])
	assert.Contains(t, text, "Рекомендация: для 1 ЦК снизьте максимальную мощность на 35.5 кВт.")
}

func TestCategories_NoNoteWhenOnlyOtherSlotInapplicable(t *testing.T) {
	body := `{"categories":[
		{"category_type":"FOURTH","total_cost":1499,"applicability":{"is_applicable_power_capacity":false,"power_capacity_change_recommendation":10}},
		{"category_type":"SEVENTH","total_cost":1}
	]}`
	text, err := Categories([]byte(body))
	require.NoError(t, err)
	assert.Contains(t, text, "4 ЦК: 1 т.р."+inapplicableMark)
	assert.Contains(t, text, "1 ЦК: в разработке")
	assert.NotContains(t, text, "Рекомендация")
}

func TestCategories_Malformed(t *testing.T) {
	for _, body := range []string{"", "   ", "<html>502</html>", `{"categories":`, `{"other":1}`, `{"categories":[{"category_type":"FIRST"}]}`} {
		_, err := Categories([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedResponse, "body %q", body)
	}
}

func TestEcho(t *testing.T) {
	text, err := Echo([]byte("  {\"kwh\": 10}\n"))
	require.NoError(t, err)
	assert.Equal(t, "Ответ:\n{\"kwh\": 10}", text)

	_, err = Echo(nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFormatThousands(t *testing.T) {
	assert.Equal(t, "120 т.р.", FormatThousands(120000))
	assert.Equal(t, "1 т.р.", FormatThousands(1499))
	assert.Equal(t, "2 т.р.", FormatThousands(1500))
	assert.Equal(t, "0 т.р.", FormatThousands(-1))
}

func TestFailure(t *testing.T) {
	status := Failure(fmt.Errorf("submit: %w", &tariff.StatusError{Code: 502, Endpoint: tariff.PathVolumes}))
	assert.Contains(t, status, "Код ошибки: 502")
	assert.True(t, strings.HasPrefix(status, "Что-то пошло не так"))

	network := Failure(&tariff.NetworkError{Kind: "dial", Err: errors.New("connection refused")})
	assert.Equal(t, "Ошибка при отправке файла: connection refused", network)
	assert.NotEqual(t, status, network)

	generic := Failure(fmt.Errorf("%w: garbage <html>", ErrMalformedResponse))
	assert.Equal(t, apology, generic)
	assert.NotContains(t, generic, "<html>")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "status_error", Outcome(&tariff.StatusError{Code: 500}))
	assert.Equal(t, "network_error", Outcome(&tariff.NetworkError{Err: errors.New("x")}))
	assert.Equal(t, "malformed", Outcome(ErrMalformedResponse))
	assert.Equal(t, "error", Outcome(errors.New("x")))
}
