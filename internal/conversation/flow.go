package conversation

import (
	"fmt"

	"github.com/etf-team/tariffbot/core/telegram/state"
	"github.com/etf-team/tariffbot/internal/render"
	"github.com/etf-team/tariffbot/internal/tariff"
)

// Conversation states. Idle and Submitting are shared by every flow.
const (
	StateIdle                     = state.StateIdle
	StateAwaitingPrimaryMeasure   state.State = "awaiting_primary_measure"
	StateAwaitingSecondaryMeasure state.State = "awaiting_secondary_measure"
	StateAwaitingVoltageClass     state.State = "awaiting_voltage_class"
	StateAwaitingContractType     state.State = "awaiting_contract_type"
	StateAwaitingMaxPower         state.State = "awaiting_max_power"
	StateSubmitting               state.State = "submitting"
)

// Flow identifiers accepted in configuration.
const (
	FlowDocumentVolumes = "document_volumes"
	FlowDocumentCases   = "document_cases"
	FlowManualVolume    = "manual_volume"
	FlowManualPeak      = "manual_peak"
)

// Answer keys stored in the session.
const (
	FieldKWh      = "kwh"
	FieldKWhMax   = "kwhmax"
	FieldVoltage  = "voltage"
	FieldContract = "transmission_included"
	FieldMaxPower = "max_power"
)

// Button families used as callback keys.
const (
	ChoiceVoltage  = "voltage"
	ChoiceContract = "contract"
)

// StepKind is the input shape a step expects.
type StepKind string

const (
	KindDecimal StepKind = "decimal"
	KindInteger StepKind = "integer"
	KindChoice  StepKind = "choice"
)

// Option is one button of a choice step.
type Option struct {
	Token string
	Label string
	Value any
}

// Step is one question of a flow.
type Step struct {
	State     state.State
	Field     string
	Kind      StepKind
	Prompt    string
	ChoiceKey string
	Options   []Option
}

func (s Step) prompt(kind ReplyKind, text string) Reply {
	return Reply{Kind: kind, Text: text, ChoiceKey: s.ChoiceKey, Options: s.Options, Cancelable: true}
}

func (s Step) retryText() string {
	switch s.Kind {
	case KindInteger:
		return textRetryInteger
	case KindChoice:
		return textRetryChoice
	default:
		return textRetryDecimal
	}
}

// Flow is a fixed sequence of steps ending in one submission.
type Flow struct {
	ID string
	// Document flows start from an uploaded spreadsheet.
	Document bool
	Steps    []Step
	Build    func(s *state.Session) (tariff.Request, error)
	Render   func(body []byte) (string, error)
}

func (f Flow) indexOf(st state.State) int {
	for i, s := range f.Steps {
		if s.State == st {
			return i
		}
	}
	return -1
}

// VoltageClass is a connection voltage tier.
type VoltageClass struct {
	Code  int
	Name  string
	Label string
}

// VoltageClasses lists the tiers in code order.
var VoltageClasses = []VoltageClass{
	{Code: 1, Name: "HIGH", Label: "ВН"},
	{Code: 2, Name: "MEDIUM_FIRST", Label: "СН-I"},
	{Code: 3, Name: "MEDIUM_SECOND", Label: "СН-II"},
	{Code: 4, Name: "LOW", Label: "НН"},
}

// VoltageByCode resolves a tier code.
func VoltageByCode(code int) (VoltageClass, bool) {
	for _, v := range VoltageClasses {
		if v.Code == code {
			return v, true
		}
	}
	return VoltageClass{}, false
}

func voltageOptions() []Option {
	opts := make([]Option, 0, len(VoltageClasses))
	for _, v := range VoltageClasses {
		opts = append(opts, Option{Token: fmt.Sprint(v.Code), Label: v.Label, Value: v.Code})
	}
	return opts
}

var (
	stepKWh = Step{
		State:  StateAwaitingPrimaryMeasure,
		Field:  FieldKWh,
		Kind:   KindDecimal,
		Prompt: "Введите объём потребления электроэнергии за месяц, кВт·ч:",
	}
	stepKWhMax = Step{
		State:  StateAwaitingSecondaryMeasure,
		Field:  FieldKWhMax,
		Kind:   KindDecimal,
		Prompt: "Введите максимальное часовое потребление, кВт·ч:",
	}
	stepVoltage = Step{
		State:     StateAwaitingVoltageClass,
		Field:     FieldVoltage,
		Kind:      KindChoice,
		Prompt:    "Выберите уровень напряжения:",
		ChoiceKey: ChoiceVoltage,
		Options:   voltageOptions(),
	}
	stepContract = Step{
		State:     StateAwaitingContractType,
		Field:     FieldContract,
		Kind:      KindChoice,
		Prompt:    "Выберите тип договора:",
		ChoiceKey: ChoiceContract,
		Options: []Option{
			{Token: "supply", Label: "Энергоснабжение", Value: true},
			{Token: "purchase", Label: "Купля-продажа", Value: false},
		},
	}
	stepMaxPower = Step{
		State:  StateAwaitingMaxPower,
		Field:  FieldMaxPower,
		Kind:   KindInteger,
		Prompt: "Введите максимальную мощность энергопринимающих устройств, кВт:",
	}
)

// DefaultFlows returns the built-in flow catalog keyed by id.
func DefaultFlows() map[string]Flow {
	flows := []Flow{
		{
			ID:       FlowDocumentVolumes,
			Document: true,
			Build: func(s *state.Session) (tariff.Request, error) {
				doc, err := attachment(s)
				if err != nil {
					return tariff.Request{}, err
				}
				return tariff.VolumesFileRequest(doc.Name, doc.Data), nil
			},
			Render: render.Echo,
		},
		{
			ID:       FlowDocumentCases,
			Document: true,
			Steps:    []Step{stepVoltage, stepContract, stepMaxPower},
			Build:    buildCases,
			Render:   render.Categories,
		},
		{
			ID:     FlowManualVolume,
			Steps:  []Step{stepKWh, stepVoltage},
			Build:  buildManual(false),
			Render: render.Echo,
		},
		{
			ID:     FlowManualPeak,
			Steps:  []Step{stepKWh, stepKWhMax, stepVoltage},
			Build:  buildManual(true),
			Render: render.Echo,
		},
	}
	out := make(map[string]Flow, len(flows))
	for _, f := range flows {
		out[f.ID] = f
	}
	return out
}

func missing(field string) error {
	return fmt.Errorf("conversation: answer %q is missing", field)
}

func attachment(s *state.Session) (*state.Attachment, error) {
	if s.Document == nil || len(s.Document.Data) == 0 {
		return nil, fmt.Errorf("conversation: session has no document")
	}
	return s.Document, nil
}

func voltage(s *state.Session) (VoltageClass, error) {
	code, ok := s.Int(FieldVoltage)
	if !ok {
		return VoltageClass{}, missing(FieldVoltage)
	}
	v, ok := VoltageByCode(code)
	if !ok {
		return VoltageClass{}, fmt.Errorf("conversation: unknown voltage code %d", code)
	}
	return v, nil
}

func buildCases(s *state.Session) (tariff.Request, error) {
	doc, err := attachment(s)
	if err != nil {
		return tariff.Request{}, err
	}
	v, err := voltage(s)
	if err != nil {
		return tariff.Request{}, err
	}
	transmission, ok := s.Bool(FieldContract)
	if !ok {
		return tariff.Request{}, missing(FieldContract)
	}
	power, ok := s.Int(FieldMaxPower)
	if !ok {
		return tariff.Request{}, missing(FieldMaxPower)
	}
	return tariff.CasesRequest(doc.Name, doc.Data, transmission, power, v.Name), nil
}

func buildManual(withPeak bool) func(*state.Session) (tariff.Request, error) {
	return func(s *state.Session) (tariff.Request, error) {
		kwh, ok := s.Float(FieldKWh)
		if !ok {
			return tariff.Request{}, missing(FieldKWh)
		}
		var peak *float64
		if withPeak {
			v, ok := s.Float(FieldKWhMax)
			if !ok {
				return tariff.Request{}, missing(FieldKWhMax)
			}
			peak = &v
		}
		v, err := voltage(s)
		if err != nil {
			return tariff.Request{}, err
		}
		return tariff.VolumesManualRequest(kwh, peak, v.Code), nil
	}
}
