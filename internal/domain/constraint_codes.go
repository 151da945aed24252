package domain

// Constraint code constants. This is the closed registry referenced by
// both the safety gate engine (which emits these) and the constraint
// translator (which maps each to enforcement fields). A gate or a mapping
// row may only use codes from this set.
const (
	BlockIron       = "BLOCK_IRON"
	BlockPotassium  = "BLOCK_POTASSIUM"
	BlockIodine     = "BLOCK_IODINE"
	BlockVitaminD   = "BLOCK_VITAMIN_D"
	BlockCalcium    = "BLOCK_CALCIUM"
	BlockB12        = "BLOCK_B12"
	BlockPostMI     = "BLOCK_POST_MI"
	BlockHepatotoxic = "BLOCK_HEPATOTOXIC"
	BlockRenal      = "BLOCK_RENAL"

	CautionHepatotoxic    = "CAUTION_HEPATOTOXIC"
	CautionRenal          = "CAUTION_RENAL"
	CautionVitaminD       = "CAUTION_VITAMIN_D"
	CautionBloodThinning  = "CAUTION_BLOOD_THINNING"

	FlagAcuteInflammation    = "FLAG_ACUTE_INFLAMMATION"
	FlagChronicInflammation = "FLAG_CHRONIC_INFLAMMATION"
	FlagInsulinResistance   = "FLAG_INSULIN_RESISTANCE"
	FlagHyperglycemia       = "FLAG_HYPERGLYCEMIA"
	FlagMethylfolateRequired = "FLAG_METHYLFOLATE_REQUIRED"
	FlagMethylationSupport  = "FLAG_METHYLATION_SUPPORT"
	FlagB12Deficiency       = "FLAG_B12_DEFICIENCY"
	FlagFolateDeficiency    = "FLAG_FOLATE_DEFICIENCY"
	FlagThyroidSupport      = "FLAG_THYROID_SUPPORT"
	FlagHypothyroid         = "FLAG_HYPOTHYROID"
	FlagHyperthyroid        = "FLAG_HYPERTHYROID"
	FlagCardiovascularRisk  = "FLAG_CARDIOVASCULAR_RISK"
	FlagLDLElevated         = "FLAG_LDL_ELEVATED"
	FlagOxidativeStress     = "FLAG_OXIDATIVE_STRESS"
	FlagAnemia              = "FLAG_ANEMIA"
	FlagIronDeficiency      = "FLAG_IRON_DEFICIENCY"
	FlagTestosteroneLow     = "FLAG_TESTOSTERONE_LOW"
	FlagEstrogenImbalance   = "FLAG_ESTROGEN_IMBALANCE"
	FlagCortisolElevated    = "FLAG_CORTISOL_ELEVATED"
)
