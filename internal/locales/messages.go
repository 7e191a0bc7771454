package locales

// MessageID names one reply template. Every id must exist in every locale file.
type MessageID string

const (
	MsgWelcome            MessageID = "Welcome"
	MsgHelp               MessageID = "Help"
	MsgMenu               MessageID = "Menu"
	MsgSetNameDone        MessageID = "SetNameDone"
	MsgSetNameHint        MessageID = "SetNameHint"
	MsgDelNameDone        MessageID = "DelNameDone"
	MsgSetDescDone        MessageID = "SetDescDone"
	MsgSetDescHint        MessageID = "SetDescHint"
	MsgDelDescDone        MessageID = "DelDescDone"
	MsgStatsCard          MessageID = "StatsCard"
	MsgNoData             MessageID = "NoData"
	MsgTopHeader          MessageID = "TopHeader"
	MsgTopLine            MessageID = "TopLine"
	MsgTopEmpty           MessageID = "TopEmpty"
	MsgFullStatsHeader    MessageID = "FullStatsHeader"
	MsgFullStatsLine      MessageID = "FullStatsLine"
	MsgFullStatsEmpty     MessageID = "FullStatsEmpty"
	MsgAdminsOnly         MessageID = "AdminsOnly"
	MsgLanguageSet        MessageID = "LanguageSet"
	MsgLanguageHint       MessageID = "LanguageHint"
	MsgContact            MessageID = "Contact"
	MsgContactUnavailable MessageID = "ContactUnavailable"
	MsgMemberWelcome      MessageID = "MemberWelcome"
	MsgGenericFailure     MessageID = "GenericFailure"
	MsgNameUnset          MessageID = "NameUnset"
	MsgDescUnset          MessageID = "DescUnset"
	MsgNoName             MessageID = "NoName"

	BtnStats      MessageID = "BtnStats"
	BtnTop        MessageID = "BtnTop"
	BtnSetName    MessageID = "BtnSetName"
	BtnSetDesc    MessageID = "BtnSetDesc"
	BtnLanguage   MessageID = "BtnLanguage"
	BtnContact    MessageID = "BtnContact"
	BtnGetStarted MessageID = "BtnGetStarted"
	BtnLangRU     MessageID = "BtnLangRU"
	BtnLangEN     MessageID = "BtnLangEN"

	CmdStart     MessageID = "CmdStart"
	CmdHelp      MessageID = "CmdHelp"
	CmdMenu      MessageID = "CmdMenu"
	CmdSetName   MessageID = "CmdSetName"
	CmdDelName   MessageID = "CmdDelName"
	CmdSetDesc   MessageID = "CmdSetDesc"
	CmdDelDesc   MessageID = "CmdDelDesc"
	CmdStats     MessageID = "CmdStats"
	CmdTop       MessageID = "CmdTop"
	CmdFullStats MessageID = "CmdFullStats"
	CmdLanguage  MessageID = "CmdLanguage"
	CmdContact   MessageID = "CmdContact"
)

var allMessages = []MessageID{
	MsgWelcome, MsgHelp, MsgMenu,
	MsgSetNameDone, MsgSetNameHint, MsgDelNameDone,
	MsgSetDescDone, MsgSetDescHint, MsgDelDescDone,
	MsgStatsCard, MsgNoData,
	MsgTopHeader, MsgTopLine, MsgTopEmpty,
	MsgFullStatsHeader, MsgFullStatsLine, MsgFullStatsEmpty, MsgAdminsOnly,
	MsgLanguageSet, MsgLanguageHint,
	MsgContact, MsgContactUnavailable,
	MsgMemberWelcome, MsgGenericFailure,
	MsgNameUnset, MsgDescUnset, MsgNoName,
	BtnStats, BtnTop, BtnSetName, BtnSetDesc, BtnLanguage, BtnContact, BtnGetStarted, BtnLangRU, BtnLangEN,
	CmdStart, CmdHelp, CmdMenu, CmdSetName, CmdDelName, CmdSetDesc, CmdDelDesc,
	CmdStats, CmdTop, CmdFullStats, CmdLanguage, CmdContact,
}

// All lists every message id.
func All() []MessageID {
	return append([]MessageID(nil), allMessages...)
}
