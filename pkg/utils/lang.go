package utils

import (
	"github.com/abadojack/whatlanggo"
)

var whatLangOpts = whatlanggo.Options{
	Whitelist: map[whatlanggo.Lang]bool{
		whatlanggo.Eng: true,
		whatlanggo.Rus: true,
		whatlanggo.Cmn: true,
		whatlanggo.Fra: true,
		whatlanggo.Deu: true,
		whatlanggo.Spa: true,
		whatlanggo.Jpn: true,
	},
}

// WhatLang returns the english name of the detected language, e.g. "English"
func WhatLang(content string) string {
	info := whatlanggo.DetectWithOptions(content, whatLangOpts)
	return info.Lang.String()
}
