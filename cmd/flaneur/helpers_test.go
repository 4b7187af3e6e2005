package main

import "github.com/gauthierbraillon/flaneur/internal/config"

func newTestConfig() config.Config {
	cfg := config.Defaults()
	cfg.Instagram.ClientID = "ig-client"
	cfg.Instagram.ClientSecret = "ig-secret"
	cfg.Instagram.RedirectURL = "http://localhost:8080/instagram/authorize"
	cfg.Facebook.AppID = "fb-app"
	cfg.Facebook.AppSecret = "fb-secret"
	cfg.Facebook.RedirectURL = "http://localhost:8080/facebook/authorize"
	return cfg
}
