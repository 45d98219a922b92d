package env

import (
	"fmt"
	"log"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type values struct {
	SERVER_ADDR                    string
	SERVER_PORT                    int
	REDIS_ADDR                     string
	PAYMENT_PROCESSOR_URL_DEFAULT  string
	PAYMENT_PROCESSOR_URL_FALLBACK string
	HEALTH_URL_DEFAULT             string
	HEALTH_URL_FALLBACK            string
	WORKER_POOL                    int
	CONSUMER_BATCH_SIZE            int
	CONSUMER_FANOUT                int
	DISPATCH_POOL_SIZE             int
	FALLBACK_RETRY_THRESHOLD       int
	AMBIGUOUS_STATUS_POLICY        string
}

var Values = &values{}

// Load fills Values from the environment. The struct field names double as
// the environment variable names.
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables.")
	}

	v := reflect.ValueOf(Values).Elem()
	t := v.Type()

	var missingVars []string

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		envVarName := fieldType.Name

		envVarValue, ok := os.LookupEnv(envVarName)
		if !ok {
			missingVars = append(missingVars, envVarName)
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(envVarValue)

		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			intValue, err := strconv.ParseInt(envVarValue, 10, 64)
			if err == nil {
				field.SetInt(intValue)
			} else {
				log.Printf("Warning: could not parse '%s' as int for variable %s\n", envVarValue, envVarName)
			}

		case reflect.Bool:
			boolValue, err := strconv.ParseBool(envVarValue)
			if err == nil {
				field.SetBool(boolValue)
			} else {
				log.Printf("Warning: could not parse '%s' as bool for variable %s\n", envVarValue, envVarName)
			}
		}
	}

	if len(missingVars) > 0 {
		for i, v := range missingVars {
			missingVars[i] = "- " + v
		}
		details := strings.Join(missingVars, "\n")
		return fmt.Errorf("some environment variables are missing:\n%s", details)
	}

	return nil
}

func ShowEnvValues() {
	log.SetPrefix("Env: ")
	log.SetFlags(0)
	defer log.SetPrefix("")
	defer log.SetFlags(log.LstdFlags)
	defer log.Println("---------------------------------------------------------------------------------------------")

	log.Println("---------------------------------------------------------------------------------------------")
	v := reflect.ValueOf(Values).Elem()
	t := v.Type()

	maxLength := 0
	for i := 0; i < t.NumField(); i++ {
		if len(t.Field(i).Name) > maxLength {
			maxLength = len(t.Field(i).Name)
		}
	}

	format := fmt.Sprintf("%%-%ds: %%v", maxLength)

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		log.Printf(format, t.Field(i).Name, field.Interface())
	}
}
