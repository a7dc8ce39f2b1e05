package ledger

// ToritoABI функции контракта кредитования, которые использует сервис
const ToritoABI = `[
	{"type":"function","name":"supplies","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"}],
	 "outputs":[{"name":"owner","type":"address"},{"name":"scaledBalance","type":"uint256"},{"name":"token","type":"address"},{"name":"status","type":"uint8"}]},
	{"type":"function","name":"supply","stateMutability":"nonpayable",
	 "inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"borrow","stateMutability":"nonpayable",
	 "inputs":[{"name":"collateralToken","type":"address"},{"name":"borrowAmount","type":"uint256"},{"name":"fiatCurrency","type":"bytes32"}],
	 "outputs":[]},
	{"type":"function","name":"repay","stateMutability":"nonpayable",
	 "inputs":[{"name":"collateralToken","type":"address"},{"name":"repayAmount","type":"uint256"},{"name":"fiatCurrency","type":"bytes32"}],
	 "outputs":[]}
]`

// ERC20ABI подмножество EIP-20
const ERC20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`
