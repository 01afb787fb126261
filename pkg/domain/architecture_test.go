package domain

import (
	"herdbook/testutil"
	"testing"
)

func TestDomainImportsOnlyStandardLibrary(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.Any(testutil.InternalImport, testutil.ThirdPartyImport),
		"the domain layer stays free of drivers and third-party code")
}
