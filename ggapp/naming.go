package ggapp

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const backupPrefix = "Financeiro_GG_"

// layout is how a locale writes a short date and a time of day.
type layout struct {
	Date string
	Time string
}

var (
	locales = []language.Tag{
		language.BrazilianPortuguese, // default
		language.EuropeanPortuguese,
		language.AmericanEnglish,
		language.BritishEnglish,
		language.German,
		language.French,
		language.Spanish,
		language.Japanese,
	}
	layouts = []layout{
		{Date: "02/01/2006", Time: "15:04:05"},
		{Date: "02/01/2006", Time: "15:04:05"},
		{Date: "1/2/2006", Time: "3:04:05 PM"},
		{Date: "02/01/2006", Time: "15:04:05"},
		{Date: "2.1.2006", Time: "15:04:05"},
		{Date: "02/01/2006", Time: "15:04:05"},
		{Date: "2/1/2006", Time: "15:04:05"},
		{Date: "2006/01/02", Time: "15:04:05"},
	}
	localeMatcher = language.NewMatcher(locales)
)

// layoutFor returns the closest known layout for a BCP 47 locale name. Unknown or
// malformed names get the pt-BR layout.
func layoutFor(locale string) layout {
	tag, err := language.Parse(locale)
	if err != nil {
		return layouts[0]
	}
	_, i, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return layouts[0]
	}
	return layouts[i]
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9]`)

// fileSafe turns a formatted date or time into a file name fragment: separators become
// dashes and any trailing day period ("PM") is dropped.
func fileSafe(s string) string {
	if i := strings.Index(s, " "); i >= 0 {
		s = s[:i]
	}
	return strings.NewReplacer("/", "-", ":", "-", ".", "-").Replace(s)
}

// BackupFileName returns the Drive file name of a backup taken at t.
func BackupFileName(description string, t time.Time, locale string) string {
	l := layoutFor(locale)
	date := fileSafe(t.Format(l.Date))
	if description == "" {
		return backupPrefix + "Backup_" + date + "_" + fileSafe(t.Format(l.Time)) + ".json"
	}
	return backupPrefix + unsafeChars.ReplaceAllString(description, "_") + "_" + date + ".json"
}

// DisplayTime formats t for listings in locale.
func DisplayTime(t time.Time, locale string) string {
	l := layoutFor(locale)
	return t.Format(l.Date) + ", " + t.Format(l.Time)
}

// DisplayName returns the human label of a backup file name: "Financeiro_GG_monthly_01-05-2024.json"
// reads "monthly 01-05-2024".
func DisplayName(name string) string {
	name = strings.TrimSuffix(name, ".json")
	name = strings.ReplaceAll(name, backupPrefix, "")
	return strings.ReplaceAll(name, "_", " ")
}
