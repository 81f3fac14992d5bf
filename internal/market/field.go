package market

// Field names one slot of the per-market state record. Stages declare the
// fields they read and write so a chain can be checked before it runs.
type Field string

const (
	// FieldSnapshot is the raw book plus the clock, status and in-play flag
	// copied onto the context before any stage runs.
	FieldSnapshot       Field = "snapshot"
	FieldTradedLadders  Field = "traded_ladders"
	FieldTradeDeltas    Field = "trade_deltas"
	FieldTradeHistory   Field = "trade_history"
	FieldTopSelections  Field = "top_selections"
	FieldTriggers       Field = "triggers"
	FieldTargetLadders  Field = "target_ladders"
	FieldWAP            Field = "wap"
	FieldFeatures       Field = "features"
	predictionFieldBase Field = "predictions/"
)

// PredictionField is the field written by the inference stage bound to slot.
func PredictionField(slot string) Field {
	return predictionFieldBase + Field(slot)
}
